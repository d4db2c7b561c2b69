package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/enums"
)

// EventRef names an outbox event and the aggregate it concerns.
type EventRef struct {
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
}

// OutboxEvent is written in the same transaction as the change it announces.
// The relay publishes it once and stamps PublishedAt.
type OutboxEvent struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EventRef
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	PublishedAt  *time.Time      `gorm:"column:published_at"`
	AttemptCount int             `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string         `gorm:"column:last_error"`
}

// OutboxDeadLetter keeps an event the relay stopped trying to publish.
type OutboxDeadLetter struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EventID uuid.UUID `gorm:"column:event_id;type:uuid;not null"`
	EventRef
	Payload  json.RawMessage        `gorm:"column:payload_json;type:jsonb;not null"`
	Reason   enums.DeadLetterReason `gorm:"column:error_reason;type:outbox_dlq_error_reason_enum;not null"`
	Message  *string                `gorm:"column:error_message"`
	Attempts int                    `gorm:"column:attempt_count;not null;default:0"`
	FailedAt time.Time              `gorm:"column:failed_at"`
}

func (OutboxDeadLetter) TableName() string { return "outbox_dlq" }
