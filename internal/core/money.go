// Package core provides the finance domain model shared by the client
// packages.
//
// This file contains amount parsing. Amounts are decimal.Decimal values so
// that totals are exact; they travel to the backend as two-decimal strings.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a transaction amount. Both dot (12.34) and comma
// (12,34) separators are accepted and the result must be strictly positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseBudgetAmount parses a budget amount. Zero is allowed, negative
// values are not.
func ParseBudgetAmount(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, ErrInvalidBudgetAmount
	}
	return d, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	return decimal.NewFromString(s)
}

// FormatAmount renders an amount the way the backend stores it.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
