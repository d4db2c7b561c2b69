package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/repo"
	"github.com/quillcoach/credits-backend/pkg/db/models"
)

// Repository persists trainer pricing overrides.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTrainer(ctx context.Context, id uuid.UUID) (*models.Trainer, error)
	CreateTrainer(ctx context.Context, trainer *models.Trainer) error
	UpdateCosts(ctx context.Context, id uuid.UUID, costs CostOverrides, now time.Time) error
}

// CostOverrides holds the columns to change; nil fields are left untouched.
type CostOverrides struct {
	AIEvaluationCost      *int64
	TrainerEvaluationCost *int64
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bound(tx)}
}

func (r *repository) FindTrainer(ctx context.Context, id uuid.UUID) (*models.Trainer, error) {
	return repo.FindOne[models.Trainer](r.DB(ctx), "id = ?", id)
}

func (r *repository) CreateTrainer(ctx context.Context, trainer *models.Trainer) error {
	return r.DB(ctx).Create(trainer).Error
}

func (r *repository) UpdateCosts(ctx context.Context, id uuid.UUID, costs CostOverrides, now time.Time) error {
	values := map[string]any{"updated_at": now}
	if costs.AIEvaluationCost != nil {
		values["ai_evaluation_cost"] = *costs.AIEvaluationCost
	}
	if costs.TrainerEvaluationCost != nil {
		values["trainer_evaluation_cost"] = *costs.TrainerEvaluationCost
	}
	return r.DB(ctx).
		Model(&models.Trainer{}).
		Where("id = ?", id).
		Updates(values).Error
}
