package enums

// TransactionType maps to credit_transaction_type.
type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeSpend      TransactionType = "spend"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

var transactionTypes = members[TransactionType]{
	TransactionTypePurchase,
	TransactionTypeSpend,
	TransactionTypeAdjustment,
}

func (t TransactionType) IsValid() bool { return transactionTypes.has(t) }

// AllowsAmount reports whether the signed amount fits the type: purchases
// credit, spends debit, adjustments go either way. Zero never fits.
func (t TransactionType) AllowsAmount(amount int64) bool {
	switch {
	case amount == 0:
		return false
	case t == TransactionTypePurchase:
		return amount > 0
	case t == TransactionTypeSpend:
		return amount < 0
	}
	return t == TransactionTypeAdjustment
}

func ParseTransactionType(value string) (TransactionType, error) {
	return transactionTypes.parse("transaction type", value, nil)
}

// TransactionSource records which producer appended a transaction.
type TransactionSource string

const (
	TransactionSourceStripe        TransactionSource = "stripe"
	TransactionSourceManualPayment TransactionSource = "manual_payment"
	TransactionSourceAdjustment    TransactionSource = "adjustment"
	TransactionSourceEvaluation    TransactionSource = "evaluation"
)

var transactionSources = members[TransactionSource]{
	TransactionSourceStripe,
	TransactionSourceManualPayment,
	TransactionSourceAdjustment,
	TransactionSourceEvaluation,
}

func (s TransactionSource) IsValid() bool { return transactionSources.has(s) }
