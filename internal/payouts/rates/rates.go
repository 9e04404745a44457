package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnknownCurrency = errors.New("no exchange rate for currency")

// Table is a fixed set of quotes, in local units per US dollar, keyed by
// upper-case ISO 4217 code.
type Table map[string]decimal.Decimal

// Parse reads quotes written as "NGN=1550.5,GHS=15.2".
func Parse(value string) (Table, error) {
	table := make(Table)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		currency, quote, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid exchange rate %q, want CUR=rate", pair)
		}
		currency = strings.ToUpper(strings.TrimSpace(currency))
		if len(currency) != 3 {
			return nil, fmt.Errorf("invalid currency code %q", currency)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(quote))
		if err != nil {
			return nil, fmt.Errorf("invalid exchange rate for %s: %w", currency, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("exchange rate for %s must be positive", currency)
		}
		table[currency] = rate
	}
	return table, nil
}

func (t Table) Rate(_ context.Context, currency string) (decimal.Decimal, error) {
	rate, ok := t[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return rate, nil
}
