package plans

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

const maxPlanNameLen = 120

// Service exposes the plan catalog.
type Service interface {
	List(ctx context.Context, trainerID uuid.UUID) ([]PlanView, error)
	Get(ctx context.Context, planID uuid.UUID) (*PlanView, error)
	Create(ctx context.Context, trainerID uuid.UUID, input CreatePlanInput) (*PlanView, error)
}

// CreatePlanInput describes a new credit bundle.
type CreatePlanInput struct {
	Name     string
	Credits  int64
	Price    decimal.Decimal
	Currency string
}

// PlanView is the catalog representation of a plan.
type PlanView struct {
	ID        uuid.UUID       `json:"id"`
	TrainerID uuid.UUID       `json:"trainerId"`
	Name      string          `json:"name"`
	Credits   int64           `json:"credits"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Active    bool            `json:"active"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "plans repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, trainerID uuid.UUID) ([]PlanView, error) {
	if trainerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trainer id is required")
	}
	rows, err := s.repo.ListByTrainer(ctx, trainerID, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	views := make([]PlanView, 0, len(rows))
	for i := range rows {
		views = append(views, *NewPlanView(&rows[i]))
	}
	return views, nil
}

func (s *service) Get(ctx context.Context, planID uuid.UUID) (*PlanView, error) {
	if planID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	plan, err := s.repo.FindByID(ctx, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return NewPlanView(plan), nil
}

func (s *service) Create(ctx context.Context, trainerID uuid.UUID, input CreatePlanInput) (*PlanView, error) {
	if trainerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trainer id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxPlanNameLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan name must be 1-120 characters")
	}
	if input.Credits <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credits must be positive")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	currency := enums.CurrencyUSD
	if strings.TrimSpace(input.Currency) != "" {
		parsed, err := enums.ParseCurrency(input.Currency)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
		}
		currency = parsed
	}

	now := s.now().UTC()
	plan := &models.Plan{
		ID:        uuid.New(),
		TrainerID: trainerID,
		Name:      name,
		Credits:   input.Credits,
		Price:     input.Price.Round(2),
		Currency:  string(currency),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create plan")
	}
	return NewPlanView(plan), nil
}

// NewPlanView maps a plan row to its catalog view.
func NewPlanView(plan *models.Plan) *PlanView {
	return &PlanView{
		ID:        plan.ID,
		TrainerID: plan.TrainerID,
		Name:      plan.Name,
		Credits:   plan.Credits,
		Price:     plan.Price,
		Currency:  plan.Currency,
		Active:    plan.Active,
	}
}
