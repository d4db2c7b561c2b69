package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/logger"
)

const (
	defaultOutboxRetention       = 30 * 24 * time.Hour
	defaultNotificationRetention = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type purgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// retentionJob deletes rows older than window. What counts as eligible is
// decided by purge.
type retentionJob struct {
	name   string
	window time.Duration
	purge  purgeFunc
	logg   *logger.Logger
	now    func() time.Time
}

func newRetentionJob(name string, window, fallback time.Duration, logg *logger.Logger, purge purgeFunc) *retentionJob {
	if window <= 0 {
		window = fallback
	}
	return &retentionJob{name: name, window: window, purge: purge, logg: logg, now: time.Now}
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"window_hours": j.window.Hours(),
		"rows_deleted": deleted,
	}), "retention purge complete")
	return nil
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository interface {
		DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	}
	Window time.Duration
}

// NewOutboxRetentionJob purges published outbox rows. Pending rows and the
// dead-letter table are left alone.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db runner required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	return newRetentionJob("outbox-retention", p.Window, defaultOutboxRetention, p.Logger,
		func(ctx context.Context, cutoff time.Time) (int64, error) {
			var deleted int64
			err := p.DB.WithTx(ctx, func(tx *gorm.DB) error {
				n, err := p.Repository.DeletePublishedBefore(ctx, tx, cutoff)
				deleted = n
				return err
			})
			return deleted, err
		}), nil
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository interface {
		DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
	Window time.Duration
}

// NewNotificationCleanupJob purges read notifications. Pending payment
// proofs are excluded by the repository.
func NewNotificationCleanupJob(p NotificationCleanupJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Repository == nil:
		return nil, errors.New("notifications repository required")
	}
	return newRetentionJob("notification-cleanup", p.Window, defaultNotificationRetention, p.Logger, p.Repository.DeleteReadBefore), nil
}
