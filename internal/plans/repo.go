package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/repo"
	"github.com/quillcoach/credits-backend/pkg/db/models"
)

// Repository persists trainer plans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, plan *models.Plan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListByTrainer(ctx context.Context, trainerID uuid.UUID, activeOnly bool) ([]models.Plan, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bound(tx)}
}

func (r *repository) Create(ctx context.Context, plan *models.Plan) error {
	return r.DB(ctx).Create(plan).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return repo.FindOne[models.Plan](r.DB(ctx), "id = ?", id)
}

func (r *repository) ListByTrainer(ctx context.Context, trainerID uuid.UUID, activeOnly bool) ([]models.Plan, error) {
	query := r.DB(ctx).Where("trainer_id = ?", trainerID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []models.Plan
	if err := query.Order("credits ASC, created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
