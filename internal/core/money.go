// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents so that a running total and the sum of
// the records it caches agree exactly at display precision.
package core

import (
	"math"
	"strconv"
	"strings"
)

// MaxAmountCents caps a single expense at one billion dollars. With the cap,
// no realistic number of expenses can overflow a user's int64 total.
const MaxAmountCents int64 = 100_000_000_000

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Signs, exponents,
// NaN/Inf spellings, anything that rounds to zero and anything above
// MaxAmountCents are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("2,5")    -> 250, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("0.004")  -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return 0, ErrInvalidAmount
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, ErrInvalidAmount
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if iv > MaxAmountCents/100 {
		return 0, ErrInvalidAmount
	}

	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
	}
	if len(fracPart) > 1 {
		fracCents += int64(fracPart[1] - '0')
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		fracCents++
	}

	cents := iv*100 + fracCents
	if cents <= 0 || cents > MaxAmountCents {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String formats the amount with a dollar prefix and two decimals ("$12.34", "-$0.50").
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents == math.MinInt64 {
		// -MinInt64 does not fit; clamp by one cent.
		cents++
	}
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + "$" + strconv.FormatInt(cents/100, 10) + "." + frac
}

// Dollars returns the amount as a float64 for spreadsheet export only.
// Calculations stay in cents.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}
