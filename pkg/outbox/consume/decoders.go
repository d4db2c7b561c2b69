package consume

import (
	"encoding/json"
	"fmt"

	"github.com/quillcoach/credits-backend/pkg/enums"
	"github.com/quillcoach/credits-backend/pkg/outbox/payloads"
)

type decodeFunc func(json.RawMessage) (any, error)

type schema struct {
	event   enums.OutboxEventType
	version int
}

// Decoders maps an (event type, envelope version) pair to its payload type.
// It is filled at startup and read-only afterwards.
type Decoders map[schema]decodeFunc

// Register binds the payload type T to eventType at version.
func Register[T any](d Decoders, eventType enums.OutboxEventType, version int) {
	d[schema{eventType, version}] = func(raw json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// DefaultDecoders knows every payload the services publish today.
func DefaultDecoders() Decoders {
	d := Decoders{}
	Register[payloads.EvaluationRequestedEvent](d, enums.EventEvaluationRequested, 1)
	Register[payloads.CreditsPurchasedEvent](d, enums.EventCreditsPurchased, 1)
	return d
}

func (d Decoders) decode(eventType enums.OutboxEventType, version int, raw json.RawMessage) (any, error) {
	if version == 0 {
		version = 1
	}
	fn, ok := d[schema{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("no decoder for %s v%d", eventType, version)
	}
	return fn(raw)
}
