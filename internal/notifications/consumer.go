package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/outbox/consume"
	"github.com/quillcoach/credits-backend/pkg/outbox/payloads"
	"github.com/quillcoach/credits-backend/pkg/redis"
)

const PurchaseConsumer = "purchase-notifications"

type creator interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// PurchaseHandler tells a student their credits landed.
type PurchaseHandler struct {
	repo creator
	now  func() time.Time
}

func NewPurchaseHandler(repo creator) (*PurchaseHandler, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	return &PurchaseHandler{repo: repo, now: time.Now}, nil
}

func (h *PurchaseHandler) Handle(ctx context.Context, d consume.Delivery) error {
	event, ok := d.Payload.(*payloads.CreditsPurchasedEvent)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "unexpected purchase payload")
	}
	if event.AccountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase event without account")
	}
	return h.repo.Create(ctx, &models.Notification{
		ID:          uuid.New(),
		RecipientID: event.AccountID,
		Type:        enums.NotificationTypeSystem,
		Title:       "Credits added",
		Message:     purchaseMessage(event),
		CreatedAt:   h.now().UTC(),
	})
}

func purchaseMessage(event *payloads.CreditsPurchasedEvent) string {
	source := ""
	if event.PlanName != "" {
		source = " from " + event.PlanName
	}
	return fmt.Sprintf("%d credits%s were added to your balance. New balance: %d.", event.Credits, source, event.BalanceAfter)
}

// NewConsumer subscribes a PurchaseHandler to credits_purchased events.
func NewConsumer(repo creator, dedupe *redis.Dedupe, sub *pubsub.Subscriber, logg *logger.Logger) (*consume.Loop, error) {
	if sub == nil {
		return nil, errors.New("ledger subscription required")
	}
	if dedupe == nil {
		return nil, errors.New("dedupe required")
	}
	handler, err := NewPurchaseHandler(repo)
	if err != nil {
		return nil, err
	}
	return consume.New(consume.Params{
		Name:         PurchaseConsumer,
		Types:        []enums.OutboxEventType{enums.EventCreditsPurchased},
		Handler:      handler.Handle,
		Dedupe:       dedupe,
		Subscription: sub,
		Logger:       logg,
	})
}
