package stripewebhook

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quillcoach/credits-backend/internal/repo"
	"github.com/quillcoach/credits-backend/pkg/db/models"
)

// Repository persists the durable dedup record for webhook deliveries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, eventID string) (*models.ProcessedWebhookEvent, error)
	// Insert records the event and reports false when it was already present.
	Insert(ctx context.Context, event *models.ProcessedWebhookEvent) (bool, error)
}

type repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bound(tx)}
}

func (r *repository) Find(ctx context.Context, eventID string) (*models.ProcessedWebhookEvent, error) {
	return repo.FindOne[models.ProcessedWebhookEvent](r.DB(ctx), "event_id = ?", eventID)
}

func (r *repository) Insert(ctx context.Context, event *models.ProcessedWebhookEvent) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
