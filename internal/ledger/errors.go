package ledger

import (
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

// Ledger failure taxonomy. Callers match these with errors.Is; the HTTP layer
// maps them through their pkg/errors codes.
var (
	ErrAccountNotFound        = pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	ErrReferenceNotFound      = pkgerrors.New(pkgerrors.CodeNotFound, "referenced plan or notification no longer exists")
	ErrInsufficientBalance    = pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient credits; purchase more credits to continue")
	ErrConcurrentModification = pkgerrors.New(pkgerrors.CodeConcurrentModification, "account was modified concurrently")
	ErrTransientFailure       = pkgerrors.New(pkgerrors.CodeTransient, "please try again")
)

// InsufficientBalanceDetails is attached to insufficient balance errors.
type InsufficientBalanceDetails struct {
	Balance  int64 `json:"balance"`
	Required int64 `json:"required"`
}

func insufficientBalance(balance, required int64) error {
	return pkgerrors.Wrap(pkgerrors.CodeInsufficientBalance, ErrInsufficientBalance, ErrInsufficientBalance.Message()).
		WithDetails(InsufficientBalanceDetails{Balance: balance, Required: required})
}
