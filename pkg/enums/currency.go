package enums

// Currency is the ISO code a plan is priced in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var currencies = members[Currency]{CurrencyUSD, CurrencyEUR, CurrencyGBP}

func (c Currency) IsValid() bool { return currencies.has(c) }

// ParseCurrency accepts Stripe's lowercase codes too.
func ParseCurrency(value string) (Currency, error) {
	return currencies.parse("currency", value, upper)
}
