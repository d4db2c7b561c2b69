package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/pkg/logger"
)

type purgeRepo struct {
	cutoffs []time.Time
	rows    int64
	err     error
}

func (r *purgeRepo) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return r.DeleteReadBefore(ctx, cutoff)
}

func (r *purgeRepo) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.cutoffs = append(r.cutoffs, cutoff)
	return r.rows, r.err
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	p.calls++
	return fn(nil)
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func pinClock(t *testing.T, job Job, now time.Time) {
	t.Helper()
	rj, ok := job.(*retentionJob)
	require.True(t, ok, "expected *retentionJob, got %T", job)
	rj.now = func() time.Time { return now }
}

func TestOutboxRetentionUsesDefaultWindowInsideTx(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &purgeRepo{rows: 7}
	tx := &passthroughTx{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: quietLogger(), DB: tx, Repository: repo})
	require.NoError(t, err)
	pinClock(t, job, now)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "outbox-retention", job.Name())
	assert.Equal(t, 1, tx.calls)
	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, now.Add(-defaultOutboxRetention), repo.cutoffs[0])
}

func TestNotificationCleanupHonoursConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	repo := &purgeRepo{rows: 42}
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: quietLogger(), Repository: repo, Window: 48 * time.Hour})
	require.NoError(t, err)
	pinClock(t, job, now)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), repo.cutoffs[0])
}

func TestRetentionJobsPropagateErrors(t *testing.T) {
	repo := &purgeRepo{err: errors.New("boom")}

	outboxJob, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: quietLogger(), DB: &passthroughTx{}, Repository: repo})
	require.NoError(t, err)
	require.Error(t, outboxJob.Run(context.Background()))

	cleanup, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: quietLogger(), Repository: repo})
	require.NoError(t, err)
	require.Error(t, cleanup.Run(context.Background()))
}

func TestRetentionJobsValidateParams(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: quietLogger(), Repository: &purgeRepo{}})
	require.Error(t, err)
	_, err = NewNotificationCleanupJob(NotificationCleanupJobParams{Repository: &purgeRepo{}})
	require.Error(t, err)
}
