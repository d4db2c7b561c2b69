package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	"github.com/quillcoach/credits-backend/pkg/pagination"
)

// Repository persists in-app notifications. Every read and write is scoped
// to a recipient except the retention purge.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	Page(ctx context.Context, q pageQuery) ([]models.Notification, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error)
	FindForRecipient(ctx context.Context, recipientID, notificationID uuid.UUID, notificationType enums.NotificationType) (*models.Notification, error)
	DeleteForRecipient(ctx context.Context, recipientID, notificationID uuid.UUID) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type pageQuery struct {
	RecipientID uuid.UUID
	UnreadOnly  bool
	After       *pagination.Cursor
	Fetch       int
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) inbox(ctx context.Context, recipientID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", recipientID)
}

func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// Page returns rows newest first, strictly older than q.After.
func (r *gormRepository) Page(ctx context.Context, q pageQuery) ([]models.Notification, error) {
	tx := r.inbox(ctx, q.RecipientID)
	if q.UnreadOnly {
		tx = tx.Where("read_at IS NULL")
	}
	if q.After != nil {
		tx = tx.Where("created_at < ? OR (created_at = ? AND id < ?)", q.After.CreatedAt, q.After.CreatedAt, q.After.ID)
	}
	var rows []models.Notification
	err := tx.Order("created_at DESC").Order("id DESC").Limit(q.Fetch).Find(&rows).Error
	return rows, err
}

// MarkRead reports whether the notification exists for the recipient.
// Marking an already read notification keeps the original read_at.
func (r *gormRepository) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, at time.Time) (bool, error) {
	var row models.Notification
	err := r.inbox(ctx, recipientID).Where("id = ?", notificationID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if row.ReadAt != nil {
		return true, nil
	}
	err = r.inbox(ctx, recipientID).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", at).Error
	return err == nil, err
}

func (r *gormRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	res := r.inbox(ctx, recipientID).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) FindForRecipient(ctx context.Context, recipientID, notificationID uuid.UUID, notificationType enums.NotificationType) (*models.Notification, error) {
	var row models.Notification
	err := r.inbox(ctx, recipientID).Where("id = ? AND type = ?", notificationID, notificationType).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &row, nil
}

// DeleteForRecipient returns 0 when the row was already gone, which is how
// two trainers racing on the same proof are told apart.
func (r *gormRepository) DeleteForRecipient(ctx context.Context, recipientID, notificationID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// DeleteReadBefore never removes pending payment proofs.
func (r *gormRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Where("type <> ?", enums.NotificationTypeManualPaymentProof).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
