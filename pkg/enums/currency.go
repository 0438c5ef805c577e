package enums

import (
	"fmt"
	"strings"
)

// Currency represents the denominations accepted for mobile-money charges.
type Currency string

const (
	CurrencyTZS Currency = "TZS"
)

// DefaultCurrency applies when a create request omits the currency.
const DefaultCurrency = CurrencyTZS

var validCurrencies = []Currency{
	CurrencyTZS,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency converts a raw string into a Currency. Empty input yields the default.
func ParseCurrency(value string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if normalized == "" {
		return DefaultCurrency, nil
	}
	for _, candidate := range validCurrencies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
