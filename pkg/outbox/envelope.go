package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/enums"
)

// ErrMalformedEnvelope wraps every reason Open rejects a payload.
var ErrMalformedEnvelope = errors.New("malformed outbox envelope")

// Actor is the user whose request produced the event.
type Actor struct {
	UserID uuid.UUID      `json:"userId"`
	Role   enums.UserRole `json:"role,omitempty"`
}

// Envelope is stored in outbox_events.payload and published as the message body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    uuid.UUID       `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Open parses an envelope and insists on an event id and a non-null body.
// Envelopes written before versioning read as version 1.
func Open(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.EventID == uuid.Nil {
		return Envelope{}, fmt.Errorf("%w: missing event id", ErrMalformedEnvelope)
	}
	if body := bytes.TrimSpace(env.Data); len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: event %s has no data", ErrMalformedEnvelope, env.EventID)
	}
	if env.Version == 0 {
		env.Version = 1
	}
	return env, nil
}
