package models

import (
	"time"

	"github.com/google/uuid"
)

// Trainer carries the per-trainer evaluation pricing. Nil costs fall back to
// the platform defaults.
type Trainer struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DisplayName           string    `gorm:"column:display_name;type:text;not null"`
	AIEvaluationCost      *int64    `gorm:"column:ai_evaluation_cost"`
	TrainerEvaluationCost *int64    `gorm:"column:trainer_evaluation_cost"`
	UpdatedAt             time.Time `gorm:"column:updated_at;type:timestamptz;not null"`
}
