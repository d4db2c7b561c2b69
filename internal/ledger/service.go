package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/db"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/pagination"
)

const defaultSalesWindow = 30 * 24 * time.Hour

// Service exposes the read side of the ledger plus account provisioning.
type Service interface {
	OpenAccount(ctx context.Context, input OpenAccountInput) (*models.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (*BalanceView, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, filter TransactionFilter) (*TransactionPage, error)
	AggregateSales(ctx context.Context, trainerID uuid.UUID, from, to time.Time) (*SalesSummary, error)
	AuthorizeTrainer(ctx context.Context, trainerID, accountID uuid.UUID) (*models.Account, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconciliationReport, error)
	ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// OpenAccountInput provisions a zero-balance account for a student.
type OpenAccountInput struct {
	AccountID   uuid.UUID
	TrainerID   *uuid.UUID
	DisplayName string
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Type       *enums.TransactionType
	Pagination pagination.Params
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) OpenAccount(ctx context.Context, input OpenAccountInput) (*models.Account, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}

	existing, err := s.repo.FindAccount(ctx, input.AccountID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}

	now := s.now().UTC()
	account := &models.Account{
		ID:          input.AccountID,
		TrainerID:   input.TrainerID,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.repo.FindAccount(ctx, input.AccountID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}
	return account, nil
}

func (s *service) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.loadAccount(ctx, accountID)
}

func (s *service) GetBalance(ctx context.Context, accountID uuid.UUID) (*BalanceView, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return newBalanceView(account), nil
}

func (s *service) ListTransactions(ctx context.Context, accountID uuid.UUID, filter TransactionFilter) (*TransactionPage, error) {
	if _, err := s.loadAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}

	query := TransactionQuery{
		AccountID: accountID,
		Type:      filter.Type,
		Limit:     filter.Pagination.Fetch(),
	}

	cursor, err := filter.Pagination.After()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		anchor, err := s.repo.FindTransaction(ctx, accountID, cursor.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve cursor")
		}
		if anchor == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
		}
		query.BeforeSequence = &anchor.Sequence
	}

	rows, err := s.repo.ListTransactions(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	rows, next := pagination.Trim(rows, filter.Pagination, func(row models.CreditTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	page := &TransactionPage{Items: make([]TransactionView, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Items = append(page.Items, newTransactionView(row))
	}
	return page, nil
}

func (s *service) AggregateSales(ctx context.Context, trainerID uuid.UUID, from, to time.Time) (*SalesSummary, error) {
	if trainerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trainer id is required")
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultSalesWindow)
	}
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}

	rows, err := s.repo.ListPurchasesForTrainer(ctx, trainerID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchases")
	}

	summary := &SalesSummary{TrainerID: trainerID, From: from, To: to}
	revenue := map[string]decimal.Decimal{}
	for _, row := range rows {
		summary.PurchaseCount++
		summary.CreditsSold += row.Amount
		if !row.PlanPrice.Valid {
			continue
		}
		currency := string(enums.CurrencyUSD)
		if row.Currency != nil && *row.Currency != "" {
			currency = strings.ToUpper(*row.Currency)
		}
		revenue[currency] = revenue[currency].Add(row.PlanPrice.Decimal)
	}
	for currency, amount := range revenue {
		summary.Revenue = append(summary.Revenue, CurrencyAmount{Currency: currency, Amount: amount})
	}
	sort.Slice(summary.Revenue, func(i, j int) bool {
		return summary.Revenue[i].Currency < summary.Revenue[j].Currency
	})
	return summary, nil
}

// AuthorizeTrainer returns the account when it is assigned to the trainer.
func (s *service) AuthorizeTrainer(ctx context.Context, trainerID, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TrainerID == nil || *account.TrainerID != trainerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "student is not assigned to this trainer")
	}
	return account, nil
}

func (s *service) ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	return s.repo.ListAccountIDs(ctx, after, limit)
}

func (s *service) loadAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	return account, nil
}
