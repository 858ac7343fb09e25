package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code. All supported currencies use two minor units,
// which is what the cents columns assume.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyETB Currency = "ETB"
)

var currencies = map[Currency]struct{}{
	CurrencyUSD: {},
	CurrencyEUR: {},
	CurrencyGBP: {},
	CurrencyETB: {},
}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	_, ok := currencies[c]
	return ok
}

// ParseCurrency accepts codes in any case and with surrounding space.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}
