package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quillcoach/credits-backend/internal/bootstrap"
	"github.com/quillcoach/credits-backend/internal/cron"
	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/internal/notifications"
	"github.com/quillcoach/credits-backend/pkg/metrics"
	"github.com/quillcoach/credits-backend/pkg/outbox"
	"github.com/quillcoach/credits-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	rt := bootstrap.MustStart(ctx, "cron-worker", bootstrap.WithRedis(), bootstrap.WithDevMigrations())
	defer rt.Shutdown(ctx)
	cfg, logg := rt.Config, rt.Logger

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(rt.Redis, redis.Key("lock", "cron-worker", env), 2*cfg.Cron.Interval)
	rt.Must(ctx, "cron lock", err)

	ledgerService, err := ledger.NewService(ledger.NewRepository(rt.DB.DB()), rt.DB)
	rt.Must(ctx, "ledger service", err)

	reconcileJob, err := cron.NewLedgerReconcileJob(cron.LedgerReconcileJobParams{
		Logger:    logg,
		Ledger:    ledgerService,
		Metrics:   metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		BatchSize: cfg.Ledger.ReconcileBatchSize,
	})
	rt.Must(ctx, "ledger reconciliation job", err)

	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         rt.DB,
		Repository: outbox.NewRepository(rt.DB.DB()),
		Window:     cfg.Cron.OutboxRetention,
	})
	rt.Must(ctx, "outbox retention job", err)

	notificationJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(rt.DB.DB()),
		Window:     cfg.Cron.NotificationRetention,
	})
	rt.Must(ctx, "notification cleanup job", err)

	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:   logg,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
		Jobs:     []cron.Job{reconcileJob, outboxJob, notificationJob},
	})
	rt.Must(ctx, "cron scheduler", err)

	runCtx, stop := rt.SignalContext(ctx, map[string]any{
		"interval": cfg.Cron.Interval.String(),
		"jobs":     len(scheduler.Jobs()),
	})
	defer stop()
	logg.Info(runCtx, "starting cron worker")

	if err := scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Must(runCtx, "cron scheduler", err)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}
