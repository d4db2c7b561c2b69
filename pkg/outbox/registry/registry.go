// Package registry maps outbox event types to their topics and payload shapes.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/config"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	"github.com/quillcoach/credits-backend/pkg/outbox"
	"github.com/quillcoach/credits-backend/pkg/outbox/payloads"
)

// ErrPermanent marks a failure that another publish attempt cannot fix.
var ErrPermanent = errors.New("permanent outbox failure")

// Permanent wraps err so errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Route is where one event type goes.
type Route struct {
	EventType enums.OutboxEventType
	Aggregate enums.OutboxAggregateType
	Topic     string
	payload   func() any
}

func route[T any](event enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) Route {
	return Route{EventType: event, Aggregate: aggregate, Topic: topic, payload: func() any { return new(T) }}
}

// Resolved is an outbox row checked against its route, with the payload decoded.
type Resolved struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.EvaluationTopic == "":
		return nil, errors.New("evaluation topic is required")
	case cfg.LedgerTopic == "":
		return nil, errors.New("ledger topic is required")
	}
	reg := &EventRegistry{routes: map[enums.OutboxEventType]Route{}}
	for _, r := range []Route{
		route[payloads.EvaluationRequestedEvent](enums.EventEvaluationRequested, enums.AggregateSubmission, cfg.EvaluationTopic),
		route[payloads.CreditsPurchasedEvent](enums.EventCreditsPurchased, enums.AggregateAccount, cfg.LedgerTopic),
	} {
		reg.routes[r.EventType] = r
	}
	return reg, nil
}

// Resolve fails permanently for rows that can never be published.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*Resolved, error) {
	rt, ok := r.routes[event.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for %s", event.EventType))
	}
	if rt.Aggregate != event.AggregateType {
		return nil, Permanent(fmt.Errorf("%s belongs to %s aggregates, row says %s", event.EventType, rt.Aggregate, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("missing aggregate id"))
	}
	env, err := outbox.Open(event.Payload)
	if err != nil {
		return nil, Permanent(err)
	}
	payload := rt.payload()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s: %w", event.EventType, err))
	}
	return &Resolved{Route: rt, Envelope: env, Payload: payload}, nil
}
