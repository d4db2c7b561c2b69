package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/db"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

// Defaults are the platform prices used when a trainer sets no override.
type Defaults struct {
	AIEvaluationCost      int64
	TrainerEvaluationCost int64
}

// Service resolves evaluation prices.
type Service interface {
	Get(ctx context.Context, trainerID uuid.UUID) (*PricingView, error)
	Update(ctx context.Context, trainerID uuid.UUID, input CostOverrides) (*PricingView, error)
	CostFor(ctx context.Context, trainerID *uuid.UUID, evaluationType enums.EvaluationType) (int64, error)
}

// PricingView reports the effective prices and whether each is overridden.
type PricingView struct {
	TrainerID             uuid.UUID `json:"trainerId"`
	AIEvaluationCost      int64     `json:"aiEvaluationCost"`
	TrainerEvaluationCost int64     `json:"trainerEvaluationCost"`
	AIOverridden          bool      `json:"aiOverridden"`
	TrainerOverridden     bool      `json:"trainerOverridden"`
}

type service struct {
	repo     Repository
	defaults Defaults
	now      func() time.Time
}

func NewService(repo Repository, defaults Defaults) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing repository required")
	}
	if defaults.AIEvaluationCost < 0 || defaults.TrainerEvaluationCost < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "default costs must not be negative")
	}
	return &service{repo: repo, defaults: defaults, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, trainerID uuid.UUID) (*PricingView, error) {
	if trainerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trainer id is required")
	}
	trainer, err := s.repo.FindTrainer(ctx, trainerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trainer pricing")
	}
	return s.view(trainerID, trainer), nil
}

func (s *service) Update(ctx context.Context, trainerID uuid.UUID, input CostOverrides) (*PricingView, error) {
	if trainerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trainer id is required")
	}
	if input.AIEvaluationCost == nil && input.TrainerEvaluationCost == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one cost is required")
	}
	if (input.AIEvaluationCost != nil && *input.AIEvaluationCost < 0) ||
		(input.TrainerEvaluationCost != nil && *input.TrainerEvaluationCost < 0) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "costs must not be negative")
	}

	now := s.now().UTC()
	existing, err := s.repo.FindTrainer(ctx, trainerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trainer pricing")
	}
	if existing == nil {
		err = s.repo.CreateTrainer(ctx, &models.Trainer{
			ID:                    trainerID,
			AIEvaluationCost:      input.AIEvaluationCost,
			TrainerEvaluationCost: input.TrainerEvaluationCost,
			UpdatedAt:             now,
		})
		if err != nil && !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create trainer pricing")
		}
		if err == nil {
			return s.Get(ctx, trainerID)
		}
	}
	if err := s.repo.UpdateCosts(ctx, trainerID, input, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update trainer pricing")
	}
	return s.Get(ctx, trainerID)
}

// CostFor returns the price of one evaluation. Students without a trainer pay
// the defaults.
func (s *service) CostFor(ctx context.Context, trainerID *uuid.UUID, evaluationType enums.EvaluationType) (int64, error) {
	if !evaluationType.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid evaluation type")
	}
	var trainer *models.Trainer
	if trainerID != nil && *trainerID != uuid.Nil {
		found, err := s.repo.FindTrainer(ctx, *trainerID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trainer pricing")
		}
		trainer = found
	}
	view := s.view(uuid.Nil, trainer)
	if evaluationType == enums.EvaluationTypeAI {
		return view.AIEvaluationCost, nil
	}
	return view.TrainerEvaluationCost, nil
}

func (s *service) view(trainerID uuid.UUID, trainer *models.Trainer) *PricingView {
	view := &PricingView{
		TrainerID:             trainerID,
		AIEvaluationCost:      s.defaults.AIEvaluationCost,
		TrainerEvaluationCost: s.defaults.TrainerEvaluationCost,
	}
	if trainer == nil {
		return view
	}
	if trainer.AIEvaluationCost != nil {
		view.AIEvaluationCost = *trainer.AIEvaluationCost
		view.AIOverridden = true
	}
	if trainer.TrainerEvaluationCost != nil {
		view.TrainerEvaluationCost = *trainer.TrainerEvaluationCost
		view.TrainerOverridden = true
	}
	return view
}
