// Package core provides money parsing and handling utilities.
//
// Amounts are carried as decimal.Decimal end to end and only converted to
// float64 once they enter the numeric pipeline.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user supplied amount into a decimal rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an optional
// sign and a leading currency symbol. Thousands separators are not supported.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("-12,34") -> -12.34
//	ParseAmount("€ 5")    -> 5
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ",") > 0 && strings.Count(s, ".") > 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if d.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AbsFloat returns the magnitude of an amount as float64 for numeric work.
func AbsFloat(d decimal.Decimal) float64 {
	return d.Abs().InexactFloat64()
}
