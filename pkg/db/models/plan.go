package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is a trainer-owned credit bundle.
type Plan struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TrainerID uuid.UUID       `gorm:"column:trainer_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;type:text;not null"`
	Credits   int64           `gorm:"column:credits;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Currency  string          `gorm:"column:currency;type:text;not null"`
	Active    bool            `gorm:"column:active;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;type:timestamptz;not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at;type:timestamptz;not null"`
}
