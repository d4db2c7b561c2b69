package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
)

// DeadLetters stores the events the relay gave up on.
type DeadLetters struct {
	db *gorm.DB
}

func NewDeadLetters(db *gorm.DB) *DeadLetters {
	return &DeadLetters{db: db}
}

// Park copies event into outbox_dlq inside tx.
func (d *DeadLetters) Park(tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, at time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !reason.IsValid() {
		return errors.New("unknown dead letter reason " + string(reason))
	}
	row := models.OutboxDeadLetter{
		ID:       uuid.New(),
		EventID:  event.ID,
		EventRef: event.EventRef,
		Payload:  event.Payload,
		Reason:   reason,
		Attempts: event.AttemptCount,
		FailedAt: at.UTC(),
	}
	if msg := clip(cause); msg != "" {
		row.Message = &msg
	}
	return tx.Create(&row).Error
}

// Find returns the dead letter for an outbox event id, or nil.
func (d *DeadLetters) Find(ctx context.Context, eventID uuid.UUID) (*models.OutboxDeadLetter, error) {
	var row models.OutboxDeadLetter
	err := d.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
