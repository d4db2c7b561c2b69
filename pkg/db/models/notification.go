package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/enums"
)

// Notification stores in-app notifications addressed to a single user.
type Notification struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	RecipientID uuid.UUID              `gorm:"column:recipient_id;type:uuid;not null"`
	Type        enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title       string                 `gorm:"column:title;type:text;not null"`
	Message     string                 `gorm:"column:message;type:text;not null"`
	Context     json.RawMessage        `gorm:"column:context;type:jsonb"`
	ReadAt      *time.Time             `gorm:"column:read_at;type:timestamptz"`
	CreatedAt   time.Time              `gorm:"column:created_at;type:timestamptz;not null"`
}

// ManualPaymentContext is the Context payload of a manual_payment_proof notification.
type ManualPaymentContext struct {
	StudentID   uuid.UUID `json:"studentId"`
	PlanID      uuid.UUID `json:"planId"`
	PlanName    string    `json:"planName"`
	Credits     int64     `json:"credits"`
	StudentName string    `json:"studentName"`
	Note        string    `json:"note,omitempty"`
}
