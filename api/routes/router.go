package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillcoach/credits-backend/api/controllers"
	catalogcontrollers "github.com/quillcoach/credits-backend/api/controllers/catalog"
	evaluationcontrollers "github.com/quillcoach/credits-backend/api/controllers/evaluations"
	fundingcontrollers "github.com/quillcoach/credits-backend/api/controllers/funding"
	ledgercontrollers "github.com/quillcoach/credits-backend/api/controllers/ledger"
	webhookcontrollers "github.com/quillcoach/credits-backend/api/controllers/webhooks"
	"github.com/quillcoach/credits-backend/api/middleware"
	"github.com/quillcoach/credits-backend/internal/evaluations"
	"github.com/quillcoach/credits-backend/internal/notifications"
	"github.com/quillcoach/credits-backend/internal/plans"
	"github.com/quillcoach/credits-backend/internal/pricing"
	"github.com/quillcoach/credits-backend/pkg/config"
	"github.com/quillcoach/credits-backend/pkg/enums"
	"github.com/quillcoach/credits-backend/pkg/logger"
	pkgredis "github.com/quillcoach/credits-backend/pkg/redis"
	"github.com/quillcoach/credits-backend/pkg/stripe"
)

// RedisStore backs both the Idempotency-Key replay cache and the rate limiter.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Dependencies are the services mounted by NewRouter.
type Dependencies struct {
	Readiness map[string]controllers.Pinger
	Redis     RedisStore
	Metrics   http.Handler

	Ledger        ledgercontrollers.Reader
	Funding       fundingcontrollers.Service
	Evaluations   evaluations.Service
	Plans         plans.Service
	Pricing       pricing.Service
	Notifications notifications.Service

	StripeClient         *stripe.Client
	StripeWebhookService webhookcontrollers.StripeWebhookService
	WebhookDedupe        *pkgredis.Dedupe
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	spendPolicy := middleware.NewRateLimitPolicy(
		"spend",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.UserLimit,
	)
	proofPolicy := middleware.NewRateLimitPolicy(
		"manual-payment-proof",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.UserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhookService, verifier(deps.StripeClient), claims(deps.WebhookDedupe), logg))
	})

	inbox := controllers.NewNotifications(deps.Notifications, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/accounts", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleStudent))
			r.Post("/", ledgercontrollers.OpenAccount(deps.Ledger, logg))
			r.Get("/me/balance", ledgercontrollers.MyBalance(deps.Ledger, logg))
			r.Get("/me/transactions", ledgercontrollers.MyTransactions(deps.Ledger, logg))
		})

		r.Route("/student", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleStudent))
			r.With(middleware.RateLimit(spendPolicy, deps.Redis, logg)).
				Post("/submissions/{submissionId}/evaluation", evaluationcontrollers.RequestEvaluation(deps.Evaluations, logg))
			r.With(middleware.RateLimit(proofPolicy, deps.Redis, logg)).
				Post("/manual-payments", fundingcontrollers.SubmitManualPayment(deps.Funding, logg))
		})

		r.Get("/plans", catalogcontrollers.ListPlans(deps.Plans, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", inbox.List)
			r.Post("/{notificationId}/read", inbox.MarkRead)
			r.Post("/read-all", inbox.MarkAllRead)
		})

		r.Route("/trainer", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleTrainer, enums.UserRoleAdmin))

			r.Route("/students/{studentId}", func(r chi.Router) {
				r.Get("/balance", ledgercontrollers.StudentBalance(deps.Ledger, logg))
				r.Get("/transactions", ledgercontrollers.StudentTransactions(deps.Ledger, logg))
				r.Get("/reconciliation", ledgercontrollers.StudentReconciliation(deps.Ledger, logg))
				r.With(middleware.RequireRole(logg, enums.UserRoleTrainer)).
					Post("/adjustments", fundingcontrollers.Adjust(deps.Funding, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleTrainer))
				r.Get("/notifications", inbox.List)
				r.Post("/manual-payments/{notificationId}/confirm", fundingcontrollers.ConfirmManualPayment(deps.Funding, logg))
				r.Post("/manual-payments/{notificationId}/reject", fundingcontrollers.RejectManualPayment(deps.Funding, logg))
				r.Get("/sales", ledgercontrollers.TrainerSales(deps.Ledger, logg))
				r.Get("/pricing", catalogcontrollers.GetPricing(deps.Pricing, logg))
				r.Put("/pricing", catalogcontrollers.UpdatePricing(deps.Pricing, logg))
				r.Post("/plans", catalogcontrollers.CreatePlan(deps.Plans, logg))
			})
		})
	})

	return r
}

// Typed nil pointers must reach the webhook handler as nil interfaces so it
// can refuse to serve.
func verifier(client *stripe.Client) webhookcontrollers.Verifier {
	if client == nil {
		return nil
	}
	return client
}

func claims(dedupe *pkgredis.Dedupe) webhookcontrollers.Claims {
	if dedupe == nil {
		return nil
	}
	return dedupe
}
