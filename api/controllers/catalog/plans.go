package catalog

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/api/responses"
	"github.com/quillcoach/credits-backend/api/validators"
	"github.com/quillcoach/credits-backend/internal/plans"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

type planService interface {
	List(ctx context.Context, trainerID uuid.UUID) ([]plans.PlanView, error)
	Create(ctx context.Context, trainerID uuid.UUID, input plans.CreatePlanInput) (*plans.PlanView, error)
}

type createPlanRequest struct {
	Name     string          `json:"name" validate:"required,notblank,max=120"`
	Credits  int64           `json:"credits" validate:"gt=0"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

// ListPlans returns a trainer's active plans. Without ?trainerId the caller's
// assigned trainer is used; trainers default to their own catalog.
func ListPlans(svc planService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trainerID, err := validators.ParseQueryUUID(r, "trainerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if trainerID == nil {
			trainerID = defaultTrainer(r)
		}
		if trainerID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "trainerId is required"))
			return
		}

		items, err := svc.List(r.Context(), *trainerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func CreatePlan(svc planService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trainerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createPlanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.Price.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative"))
			return
		}

		view, err := svc.Create(r.Context(), trainerID, plans.CreatePlanInput{
			Name:     req.Name,
			Credits:  req.Credits,
			Price:    req.Price,
			Currency: req.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func defaultTrainer(r *http.Request) *uuid.UUID {
	if assigned := middleware.AssignedTrainerID(r.Context()); assigned != nil {
		return assigned
	}
	if middleware.RoleFromContext(r.Context()) != string(enums.UserRoleTrainer) {
		return nil
	}
	callerID, err := middleware.ActorID(r.Context())
	if err != nil {
		return nil
	}
	return &callerID
}
