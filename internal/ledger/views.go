package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
)

// BalanceView is the current balance plus plan assignment.
type BalanceView struct {
	AccountID   uuid.UUID `json:"accountId"`
	Credits     int64     `json:"credits"`
	CurrentPlan *PlanRef  `json:"currentPlan,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type PlanRef struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`
}

// TransactionView is the API shape of a credit transaction.
type TransactionView struct {
	ID           uuid.UUID               `json:"id"`
	Sequence     int64                   `json:"sequence"`
	Type         enums.TransactionType   `json:"type"`
	Amount       int64                   `json:"amount"`
	Description  string                  `json:"description"`
	BalanceAfter int64                   `json:"balanceAfter"`
	Source       enums.TransactionSource `json:"source"`
	TrainerID    *uuid.UUID              `json:"trainerId,omitempty"`
	PlanID       *uuid.UUID              `json:"planId,omitempty"`
	PlanName     *string                 `json:"planName,omitempty"`
	PlanPrice    *decimal.Decimal        `json:"planPrice,omitempty"`
	Currency     *string                 `json:"currency,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
}

type TransactionPage struct {
	Items      []TransactionView `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// SalesSummary aggregates a trainer's purchases over [From, To).
type SalesSummary struct {
	TrainerID     uuid.UUID        `json:"trainerId"`
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	PurchaseCount int64            `json:"purchaseCount"`
	CreditsSold   int64            `json:"creditsSold"`
	Revenue       []CurrencyAmount `json:"revenue"`
}

type CurrencyAmount struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

func newBalanceView(account *models.Account) *BalanceView {
	view := &BalanceView{
		AccountID: account.ID,
		Credits:   account.Credits,
		UpdatedAt: account.UpdatedAt,
	}
	if account.CurrentPlanID != nil {
		ref := &PlanRef{ID: *account.CurrentPlanID, AssignedAt: account.CurrentPlanAssignedAt}
		if account.CurrentPlanName != nil {
			ref.Name = *account.CurrentPlanName
		}
		view.CurrentPlan = ref
	}
	return view
}

func newTransactionView(row models.CreditTransaction) TransactionView {
	view := TransactionView{
		ID:           row.ID,
		Sequence:     row.Sequence,
		Type:         row.Type,
		Amount:       row.Amount,
		Description:  row.Description,
		BalanceAfter: row.BalanceAfter,
		Source:       row.Source,
		TrainerID:    row.TrainerID,
		PlanID:       row.PlanID,
		PlanName:     row.PlanName,
		Currency:     row.Currency,
		CreatedAt:    row.CreatedAt,
	}
	if row.PlanPrice.Valid {
		price := row.PlanPrice.Decimal
		view.PlanPrice = &price
	}
	return view
}
