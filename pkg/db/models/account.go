package models

import (
	"time"

	"github.com/google/uuid"
)

// Account holds a student's credit balance. Credits and Version only change
// through the ledger mutator.
type Account struct {
	ID                    uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TrainerID             *uuid.UUID `gorm:"column:trainer_id;type:uuid"`
	DisplayName           string     `gorm:"column:display_name;type:text;not null"`
	Credits               int64      `gorm:"column:credits;not null"`
	Version               int64      `gorm:"column:version;not null"`
	CurrentPlanID         *uuid.UUID `gorm:"column:current_plan_id;type:uuid"`
	CurrentPlanName       *string    `gorm:"column:current_plan_name;type:text"`
	CurrentPlanAssignedAt *time.Time `gorm:"column:current_plan_assigned_at;type:timestamptz"`
	LastEntryAt           *time.Time `gorm:"column:last_entry_at;type:timestamptz"`
	CreatedAt             time.Time  `gorm:"column:created_at;type:timestamptz;not null"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;type:timestamptz;not null"`
}
