package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

const maxDescriptionLen = 500

// Entry is a single requested balance change.
type Entry struct {
	AccountID   uuid.UUID
	Type        enums.TransactionType
	Amount      int64
	Description string
	Context     EntryContext
}

// EntryContext is denormalized reporting context stored on the transaction.
type EntryContext struct {
	TrainerID *uuid.UUID
	StudentID *uuid.UUID
	PlanID    *uuid.UUID
	PlanName  string
	PlanPrice *decimal.Decimal
	Currency  string
	Source    enums.TransactionSource
	SourceRef string
	ActorID   *uuid.UUID
	// AssignPlan records PlanID/PlanName as the account's current plan.
	AssignPlan bool
}

// Result describes a committed (or about to commit) entry.
type Result struct {
	Transaction     models.CreditTransaction
	PreviousBalance int64
	NewBalance      int64
}

func (e Entry) validate() error {
	if e.AccountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !e.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if e.Amount == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	if !e.Type.AllowsAmount(e.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount sign does not match transaction type")
	}
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if len(desc) > maxDescriptionLen {
		return pkgerrors.New(pkgerrors.CodeValidation, "description is too long")
	}
	if !e.Context.Source.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction source")
	}
	if e.Context.AssignPlan && (e.Context.PlanID == nil || e.Context.PlanName == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan assignment requires plan id and name")
	}
	return nil
}

func (e Entry) transaction(sequence, balanceAfter int64, at time.Time) models.CreditTransaction {
	txn := models.CreditTransaction{
		ID:           uuid.New(),
		AccountID:    e.AccountID,
		Sequence:     sequence,
		Type:         e.Type,
		Amount:       e.Amount,
		Description:  e.Description,
		BalanceAfter: balanceAfter,
		TrainerID:    e.Context.TrainerID,
		StudentID:    e.Context.StudentID,
		PlanID:       e.Context.PlanID,
		Source:       e.Context.Source,
		ActorID:      e.Context.ActorID,
		CreatedAt:    at,
	}
	if txn.StudentID == nil {
		id := e.AccountID
		txn.StudentID = &id
	}
	if e.Context.PlanName != "" {
		name := e.Context.PlanName
		txn.PlanName = &name
	}
	if e.Context.PlanPrice != nil {
		txn.PlanPrice = decimal.NullDecimal{Decimal: *e.Context.PlanPrice, Valid: true}
	}
	if e.Context.Currency != "" {
		currency := e.Context.Currency
		txn.Currency = &currency
	}
	if e.Context.SourceRef != "" {
		ref := e.Context.SourceRef
		txn.SourceRef = &ref
	}
	return txn
}
