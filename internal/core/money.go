// Package core provides money parsing and handling utilities.
//
// This file contains the Amount type used by every editable money field.
// Form fields arrive as free text while a user is still typing, so Amount
// coerces blank or non-numeric input to zero instead of failing. Inputs that
// must be valid before they reach the finance API (payments, credit notes)
// go through ParseAmount, which is strict.
package core

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Hundred is the percentage divisor.
var Hundred = decimal.NewFromInt(100)

// Bounds for any amount accepted from input. Larger exponents make every
// later add or compare rescale to an arbitrarily large integer.
const maxAmountExponent = 18

var maxAmount = decimal.New(1, 15)

// inRange reports whether d has a bounded exponent and |d| < 1e15. The
// exponent is checked first since Cmp itself rescales.
func inRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp > maxAmountExponent || exp < -maxAmountExponent {
		return false
	}
	return d.Abs().LessThan(maxAmount)
}

// Amount is a decimal currency amount or percentage as edited in a form.
// The zero value means "unset" and contributes nothing to any total.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a decimal value.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// AmountOf builds an Amount from an integer number of currency units.
func AmountOf(units int64) Amount {
	return Amount{Decimal: decimal.NewFromInt(units)}
}

// LenientAmount converts form text to an Amount. Blank, malformed or
// out-of-range input yields zero; it never returns an error.
//
// Examples:
//
//	LenientAmount("8000")   -> 8000
//	LenientAmount(" 12,5 ") -> 12.5
//	LenientAmount("")       -> 0
//	LenientAmount("abc")    -> 0
//	LenientAmount("1e400")  -> 0
func LenientAmount(s string) Amount {
	s = normalizeDecimal(s)
	if s == "" {
		return Amount{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !inRange(d) {
		return Amount{}
	}
	return Amount{Decimal: d}
}

// IsSet reports whether the amount carries a nonzero value.
func (a Amount) IsSet() bool {
	return !a.Decimal.IsZero()
}

// UnmarshalJSON accepts a JSON number, a numeric string, an empty string or
// null. Anything else decodes to zero rather than failing the whole payload.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			*a = Amount{}
			return nil
		}
		*a = LenientAmount(s)
		return nil
	}
	*a = LenientAmount(string(data))
	return nil
}

// MarshalJSON writes the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// ParseAmount parses a strictly positive decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Returns
// ErrInvalidAmount for blank, malformed, out-of-range, negative or zero
// values.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = normalizeDecimal(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !inRange(d) {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatMoney renders an amount with two decimals, e.g. "RM 8,000.00".
// Rounding happens here and only here.
func FormatMoney(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "RM " + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

func normalizeDecimal(s string) string {
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, ",", ".")
}
