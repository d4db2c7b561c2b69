package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillcoach/credits-backend/api/controllers"
	"github.com/quillcoach/credits-backend/api/routes"
	"github.com/quillcoach/credits-backend/internal/bootstrap"
	"github.com/quillcoach/credits-backend/internal/evaluations"
	"github.com/quillcoach/credits-backend/internal/funding"
	"github.com/quillcoach/credits-backend/internal/ledger"
	"github.com/quillcoach/credits-backend/internal/notifications"
	"github.com/quillcoach/credits-backend/internal/plans"
	"github.com/quillcoach/credits-backend/internal/pricing"
	"github.com/quillcoach/credits-backend/internal/submissions"
	stripewebhook "github.com/quillcoach/credits-backend/internal/webhooks/stripe"
	"github.com/quillcoach/credits-backend/pkg/metrics"
	"github.com/quillcoach/credits-backend/pkg/outbox"
	"github.com/quillcoach/credits-backend/pkg/redis"
	"github.com/quillcoach/credits-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	rt := bootstrap.MustStart(ctx, "api", bootstrap.WithRedis(), bootstrap.WithDevMigrations())
	defer rt.Shutdown(ctx)
	cfg, logg, dbClient, redisClient := rt.Config, rt.Logger, rt.DB, rt.Redis

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	mutator, err := ledger.NewMutator(ledger.MutatorParams{
		Repository:     ledgerRepo,
		TxRunner:       dbClient,
		Metrics:        ledgerMetrics,
		Logger:         logg,
		MaxAttempts:    cfg.Ledger.MaxAttempts,
		RetryBaseDelay: cfg.Ledger.RetryBaseDelay,
	})
	rt.Must(ctx, "balance mutator", err)
	ledgerService, err := ledger.NewService(ledgerRepo, dbClient)
	rt.Must(ctx, "ledger service", err)

	plansRepo := plans.NewRepository(dbClient.DB())
	plansService, err := plans.NewService(plansRepo)
	rt.Must(ctx, "plans service", err)
	pricingService, err := pricing.NewService(pricing.NewRepository(dbClient.DB()), pricing.Defaults{
		AIEvaluationCost:      cfg.Ledger.DefaultAICost,
		TrainerEvaluationCost: cfg.Ledger.DefaultTrainerCost,
	})
	rt.Must(ctx, "pricing service", err)
	notificationsRepo := notifications.NewRepository(dbClient.DB())
	notificationsService, err := notifications.NewService(notificationsRepo)
	rt.Must(ctx, "notifications service", err)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	fundingService, err := funding.NewService(funding.ServiceParams{
		Mutator:       mutator,
		Accounts:      ledgerService,
		Plans:         plansRepo,
		Notifications: notificationsRepo,
		Proofs:        notificationsService,
		Outbox:        outboxService,
		Logger:        logg,
	})
	rt.Must(ctx, "funding service", err)

	evaluationService, err := evaluations.NewService(evaluations.ServiceParams{
		Mutator:     mutator,
		Accounts:    ledgerService,
		Pricing:     pricingService,
		Submissions: submissions.NewRepository(dbClient.DB()),
		Outbox:      outboxService,
		Logger:      logg,
	})
	rt.Must(ctx, "evaluation service", err)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	rt.Must(ctx, "stripe client", err)
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Purchases: fundingService,
		Atomic:    mutator,
		Events:    stripewebhook.NewRepository(dbClient.DB()),
		Metrics:   ledgerMetrics,
		Logger:    logg,
	})
	rt.Must(ctx, "stripe webhook service", err)
	webhookDedupe, err := redis.NewDedupe(redisClient, cfg.Stripe.IdempotencyTTL)
	rt.Must(ctx, "stripe webhook dedupe", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	runCtx, stop := rt.SignalContext(ctx, map[string]any{
		"addr":       addr,
		"instance":   instance,
		"stripe_env": stripeClient.Environment(),
	})
	defer stop()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			Readiness: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Redis:                redisClient,
			Metrics:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			Ledger:               ledgerService,
			Funding:              fundingService,
			Evaluations:          evaluationService,
			Plans:                plansService,
			Pricing:              pricingService,
			Notifications:        notificationsService,
			StripeClient:         stripeClient,
			StripeWebhookService: webhookService,
			WebhookDedupe:        webhookDedupe,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		rt.Must(runCtx, "http server", err)
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
		}
		logg.Info(runCtx, "api server shut down gracefully")
	}
}
