package main

import (
	"context"
	"errors"

	"github.com/quillcoach/credits-backend/internal/bootstrap"
	"github.com/quillcoach/credits-backend/internal/evaluations"
	"github.com/quillcoach/credits-backend/internal/notifications"
	"github.com/quillcoach/credits-backend/pkg/pubsub"
	"github.com/quillcoach/credits-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	rt := bootstrap.MustStart(ctx, "evaluation-worker", bootstrap.WithRedis())
	defer rt.Shutdown(ctx)
	cfg, logg := rt.Config, rt.Logger

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	rt.Must(ctx, "pubsub", err)
	rt.OnClose("pubsub", pubsubClient.Close)

	dedupe, err := redis.NewDedupe(rt.Redis, cfg.Eventing.OutboxIdempotencyTTL)
	rt.Must(ctx, "event dedupe", err)

	trigger, err := evaluations.NewTriggerClient(cfg.Evaluation, nil)
	rt.Must(ctx, "evaluation trigger", err)
	evaluationConsumer, err := evaluations.NewConsumer(trigger, dedupe, pubsubClient.EvaluationSubscription(), logg)
	rt.Must(ctx, "evaluation consumer", err)

	consumers := []consumer{evaluationConsumer}
	if sub := pubsubClient.LedgerSubscription(); sub != nil {
		purchaseConsumer, err := notifications.NewConsumer(notifications.NewRepository(rt.DB.DB()), dedupe, sub, logg)
		rt.Must(ctx, "purchase notification consumer", err)
		consumers = append(consumers, purchaseConsumer)
	}

	worker, err := NewWorker(logg, map[string]pinger{
		"database": rt.DB,
		"redis":    rt.Redis,
		"pubsub":   pubsubClient,
	}, consumers...)
	rt.Must(ctx, "worker", err)

	runCtx, stop := rt.SignalContext(ctx, map[string]any{"consumers": len(consumers)})
	defer stop()
	logg.Info(runCtx, "evaluation worker ready")

	if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Must(runCtx, "evaluation worker", err)
	}
	logg.Info(runCtx, "evaluation worker shutting down gracefully")
}
