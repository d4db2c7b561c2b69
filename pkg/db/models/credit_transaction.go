package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quillcoach/credits-backend/pkg/enums"
)

// CreditTransaction is one append-only ledger entry. Sequence equals the
// account version produced by the entry.
type CreditTransaction struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	AccountID    uuid.UUID               `gorm:"column:account_id;type:uuid;not null"`
	Sequence     int64                   `gorm:"column:sequence;not null"`
	Type         enums.TransactionType   `gorm:"column:type;type:credit_transaction_type;not null"`
	Amount       int64                   `gorm:"column:amount;not null"`
	Description  string                  `gorm:"column:description;type:text;not null"`
	BalanceAfter int64                   `gorm:"column:balance_after;not null"`
	TrainerID    *uuid.UUID              `gorm:"column:trainer_id;type:uuid"`
	StudentID    *uuid.UUID              `gorm:"column:student_id;type:uuid"`
	PlanID       *uuid.UUID              `gorm:"column:plan_id;type:uuid"`
	PlanName     *string                 `gorm:"column:plan_name;type:text"`
	PlanPrice    decimal.NullDecimal     `gorm:"column:plan_price;type:numeric(12,2)"`
	Currency     *string                 `gorm:"column:currency;type:text"`
	Source       enums.TransactionSource `gorm:"column:source;type:credit_transaction_source;not null"`
	SourceRef    *string                 `gorm:"column:source_ref;type:text"`
	ActorID      *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	CreatedAt    time.Time               `gorm:"column:created_at;type:timestamptz;not null"`
}
