package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedWebhookEvent is the durable dedup record for external webhook deliveries.
type ProcessedWebhookEvent struct {
	EventID     string     `gorm:"column:event_id;type:text;primaryKey"`
	Provider    string     `gorm:"column:provider;type:text;not null"`
	EventType   string     `gorm:"column:event_type;type:text;not null"`
	AccountID   *uuid.UUID `gorm:"column:account_id;type:uuid"`
	ProcessedAt time.Time  `gorm:"column:processed_at;type:timestamptz;not null"`
}
