package ledger

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/api/responses"
	"github.com/quillcoach/credits-backend/api/validators"
	internalledger "github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/pagination"
)

// Reader is the read and provisioning surface of the ledger used by HTTP handlers.
type Reader interface {
	OpenAccount(ctx context.Context, input internalledger.OpenAccountInput) (*models.Account, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (*internalledger.BalanceView, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, filter internalledger.TransactionFilter) (*internalledger.TransactionPage, error)
	AggregateSales(ctx context.Context, trainerID uuid.UUID, from, to time.Time) (*internalledger.SalesSummary, error)
	AuthorizeTrainer(ctx context.Context, trainerID, accountID uuid.UUID) (*models.Account, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*internalledger.ReconciliationReport, error)
}

type openAccountRequest struct {
	DisplayName string `json:"displayName" validate:"required,notblank,max=120"`
}

// OpenAccount provisions the caller's zero-balance account. Repeated calls
// return the existing account.
func OpenAccount(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req openAccountRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.OpenAccount(r.Context(), internalledger.OpenAccountInput{
			AccountID:   studentID,
			TrainerID:   middleware.AssignedTrainerID(r.Context()),
			DisplayName: req.DisplayName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetBalance(r.Context(), account.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func MyBalance(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetBalance(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func MyTransactions(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeTransactions(w, r, svc, accountID, logg)
	}
}

func writeTransactions(w http.ResponseWriter, r *http.Request, svc Reader, accountID uuid.UUID, logg *logger.Logger) {
	filter, err := parseTransactionFilter(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	page, err := svc.ListTransactions(r.Context(), accountID, filter)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, page)
}

func parseTransactionFilter(r *http.Request) (internalledger.TransactionFilter, error) {
	var filter internalledger.TransactionFilter

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filter, err
	}
	filter.Pagination = pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		txType, err := enums.ParseTransactionType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type")
		}
		filter.Type = &txType
	}
	return filter, nil
}
