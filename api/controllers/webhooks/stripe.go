package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/quillcoach/credits-backend/api/responses"
	stripewebhook "github.com/quillcoach/credits-backend/internal/webhooks/stripe"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

const (
	maxPayloadBytes = 65536
	claimScope      = "stripe-webhook"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
	Processed(ctx context.Context, eventID string) (bool, error)
}

// Verifier authenticates a raw delivery against its Stripe-Signature header.
type Verifier interface {
	Verify(payload []byte, header string) (stripe.Event, error)
}

// Claims serializes concurrent deliveries of one event. A held claim is only
// a hint: the processed_webhook_events row decides whether it was credited.
type Claims interface {
	Claim(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

// StripeWebhook verifies and fulfills Stripe checkout deliveries. Once the
// signature checks out, fulfillment failures are acknowledged with 200 and
// left for reconciliation.
func StripeWebhook(svc StripeWebhookService, verifier Verifier, claims Claims, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch {
		case svc == nil:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		case verifier == nil:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe verifier unavailable"))
			return
		case claims == nil:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook dedupe unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		event, err := verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, err, "verify signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})
		}

		fresh, err := claims.Claim(ctx, claimScope, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		if !fresh {
			processed, err := svc.Processed(ctx, event.ID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if processed {
				responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": true})
				return
			}
			// Claimed but never committed: the earlier delivery died or is
			// still running. The insert inside HandleEvent is the real guard.
			if logg != nil {
				logg.Warn(ctx, "stripe event claim held without processed record, handling again")
			}
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if releaseErr := claims.Release(context.WithoutCancel(ctx), claimScope, event.ID); releaseErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event claim", releaseErr)
			}
			if errors.Is(err, stripewebhook.ErrFulfillmentFailed) {
				responses.WriteSuccess(w, map[string]any{"received": true})
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}
