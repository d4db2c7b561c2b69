package main

import (
	"context"
	"errors"

	"github.com/quillcoach/credits-backend/internal/bootstrap"
	"github.com/quillcoach/credits-backend/pkg/outbox"
	"github.com/quillcoach/credits-backend/pkg/outbox/registry"
	"github.com/quillcoach/credits-backend/pkg/pubsub"
)

func main() {
	ctx := context.Background()
	rt := bootstrap.MustStart(ctx, "outbox-publisher", bootstrap.WithDevMigrations())
	defer rt.Shutdown(ctx)
	cfg := rt.Config

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger)
	rt.Must(ctx, "pubsub", err)
	rt.OnClose("pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	rt.Must(ctx, "event registry", err)

	relay, err := NewRelay(RelayParams{
		Config:      cfg.Outbox,
		Logger:      rt.Logger,
		DB:          rt.DB,
		PubSub:      pubsubClient,
		Events:      outbox.NewRepository(rt.DB.DB()),
		DeadLetters: outbox.NewDeadLetters(rt.DB.DB()),
		Registry:    eventRegistry,
	})
	rt.Must(ctx, "outbox relay", err)

	runCtx, stop := rt.SignalContext(ctx, map[string]any{
		"batch_size":   relay.batchSize,
		"max_attempts": relay.maxAttempts,
	})
	defer stop()
	rt.Logger.Info(runCtx, "outbox relay started")

	if err := relay.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Must(runCtx, "outbox relay", err)
	}
	rt.Logger.Info(runCtx, "outbox relay drained and stopped")
}
