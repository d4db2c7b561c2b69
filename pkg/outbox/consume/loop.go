// Package consume runs outbox event handlers behind a Pub/Sub subscription.
package consume

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/outbox"
)

// Delivery is a decoded outbox event. Payload is a pointer to the type
// registered for Type and Version.
type Delivery struct {
	MessageID string
	EventID   uuid.UUID
	Type      enums.OutboxEventType
	Version   int
	Payload   any
}

type Handler func(ctx context.Context, d Delivery) error

type Verdict int

const (
	Ack Verdict = iota
	Nack
)

func (v Verdict) String() string {
	if v == Nack {
		return "nack"
	}
	return "ack"
}

type claimer interface {
	Claim(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type Params struct {
	// Name scopes dedupe marks and log lines.
	Name         string
	Types        []enums.OutboxEventType
	Handler      Handler
	Dedupe       claimer
	Decoders     Decoders
	Subscription receiver
	Logger       *logger.Logger
}

// Loop acks events it will never be able to handle and nacks retryable
// failures so Pub/Sub redelivers them.
type Loop struct {
	name     string
	accepts  map[enums.OutboxEventType]bool
	handler  Handler
	dedupe   claimer
	decoders Decoders
	sub      receiver
	logg     *logger.Logger
}

func New(p Params) (*Loop, error) {
	switch {
	case p.Name == "":
		return nil, errors.New("consumer name required")
	case len(p.Types) == 0:
		return nil, errors.New("at least one event type required")
	case p.Handler == nil:
		return nil, errors.New("handler required")
	case p.Dedupe == nil:
		return nil, errors.New("dedupe required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	decoders := p.Decoders
	if decoders == nil {
		decoders = DefaultDecoders()
	}
	accepts := make(map[enums.OutboxEventType]bool, len(p.Types))
	for _, t := range p.Types {
		if _, ok := decoders[schema{t, 1}]; !ok {
			return nil, fmt.Errorf("consumer %s: no decoder for %s", p.Name, t)
		}
		accepts[t] = true
	}
	return &Loop{
		name:     p.Name,
		accepts:  accepts,
		handler:  p.Handler,
		dedupe:   p.Dedupe,
		decoders: decoders,
		sub:      p.Subscription,
		logg:     p.Logger,
	}, nil
}

func (l *Loop) Name() string { return l.name }

// Run blocks on the subscription until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	if l.sub == nil {
		return fmt.Errorf("consumer %s has no subscription", l.name)
	}
	return l.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if l.Process(ctx, msg.ID, msg.Attributes, msg.Data) == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process handles one raw message and decides its fate.
func (l *Loop) Process(ctx context.Context, messageID string, attrs map[string]string, data []byte) Verdict {
	eventType := enums.OutboxEventType(attrs["event_type"])
	ctx = l.logg.WithFields(ctx, map[string]any{
		"consumer":   l.name,
		"message_id": messageID,
		"event_type": string(eventType),
	})
	if !l.accepts[eventType] {
		l.logg.Debug(ctx, "event not subscribed")
		return Ack
	}

	env, err := outbox.Open(data)
	if err != nil {
		l.logg.Error(ctx, "malformed envelope dropped", err)
		return Ack
	}
	eventID := env.EventID
	ctx = l.logg.WithField(ctx, "event_id", eventID.String())
	payload, err := l.decoders.decode(eventType, env.Version, env.Data)
	if err != nil {
		l.logg.Error(ctx, "undecodable payload dropped", err)
		return Ack
	}

	fresh, err := l.dedupe.Claim(ctx, l.name, eventID.String())
	if err != nil {
		l.logg.Error(ctx, "dedupe claim failed", err)
		return Nack
	}
	if !fresh {
		l.logg.Info(ctx, "event already handled")
		return Ack
	}

	err = l.handler(ctx, Delivery{
		MessageID: messageID,
		EventID:   eventID,
		Type:      eventType,
		Version:   env.Version,
		Payload:   payload,
	})
	switch {
	case err == nil:
		l.logg.Info(ctx, "event handled")
		return Ack
	case !pkgerrors.IsRetryable(err):
		l.logg.Error(ctx, "event rejected by handler", err)
		return Ack
	}
	l.logg.Warn(l.logg.WithField(ctx, "error", err.Error()), "event handling failed; will retry")
	if relErr := l.dedupe.Release(context.WithoutCancel(ctx), l.name, eventID.String()); relErr != nil {
		l.logg.Error(ctx, "dedupe release failed", relErr)
	}
	return Nack
}
