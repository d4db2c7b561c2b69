package evaluations

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/outbox/consume"
	"github.com/quillcoach/credits-backend/pkg/outbox/payloads"
	"github.com/quillcoach/credits-backend/pkg/redis"
)

const TriggerConsumer = "evaluation-trigger"

type trigger interface {
	Trigger(ctx context.Context, request TriggerRequest) error
}

// TriggerHandler forwards paid ai evaluations to the evaluation service.
// Trainer evaluations are acknowledged untouched.
type TriggerHandler struct {
	trigger trigger
	logg    *logger.Logger
}

func NewTriggerHandler(t trigger, logg *logger.Logger) (*TriggerHandler, error) {
	if t == nil {
		return nil, errors.New("evaluation trigger required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &TriggerHandler{trigger: t, logg: logg}, nil
}

func (h *TriggerHandler) Handle(ctx context.Context, d consume.Delivery) error {
	event, ok := d.Payload.(*payloads.EvaluationRequestedEvent)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "unexpected evaluation payload")
	}
	ctx = h.logg.WithField(ctx, "submission_id", event.SubmissionID.String())
	if event.EvaluationType != enums.EvaluationTypeAI {
		h.logg.Debug(ctx, "evaluation is reviewed by the trainer")
		return nil
	}

	err := h.trigger.Trigger(ctx, TriggerRequest{SubmissionID: event.SubmissionID, TrainerID: event.TrainerID})
	if err != nil && !pkgerrors.IsRetryable(err) {
		// The debit stands; support resolves refused submissions by hand.
		h.logg.Error(h.logg.WithField(ctx, "reconciliation_required", true), "evaluation trigger refused request", err)
		return nil
	}
	return err
}

// NewConsumer subscribes a TriggerHandler to evaluation_requested events.
func NewConsumer(t trigger, dedupe *redis.Dedupe, sub *pubsub.Subscriber, logg *logger.Logger) (*consume.Loop, error) {
	if sub == nil {
		return nil, errors.New("evaluation subscription required")
	}
	if dedupe == nil {
		return nil, errors.New("dedupe required")
	}
	handler, err := NewTriggerHandler(t, logg)
	if err != nil {
		return nil, err
	}
	return consume.New(consume.Params{
		Name:         TriggerConsumer,
		Types:        []enums.OutboxEventType{enums.EventEvaluationRequested},
		Handler:      handler.Handle,
		Dedupe:       dedupe,
		Subscription: sub,
		Logger:       logg,
	})
}
