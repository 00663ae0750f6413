// Package core provides money parsing and handling utilities.
//
// This file contains the Money value type and functions for parsing monetary
// amounts from user input. Amounts are exact decimals quantized to cents.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is an immutable monetary amount with two decimal places.
// The zero value is a valid zero amount.
type Money struct {
	amount decimal.Decimal
}

// NewMoney quantizes d to cents (half away from zero).
func NewMoney(d decimal.Decimal) Money {
	return Money{amount: d.Round(2)}
}

// MoneyFromCents builds an amount from integer cents.
func MoneyFromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -2)}
}

// Zero returns a zero amount.
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// ParseMoney converts a decimal string to Money with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs, exponents and grouping
// separators are rejected. Zero is accepted; callers decide whether it is valid.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,345") -> 12.35
//	ParseMoney("-1")     -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	if parts[0] == "" {
		parts[0] = "0"
	}
	if len(parts) == 2 && parts[1] == "" {
		parts = parts[:1]
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return Money{}, ErrInvalidAmount
			}
		}
	}
	if len(parts[0]) > 15 {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(strings.Join(parts, "."))
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return NewMoney(d), nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{amount: m.amount.Add(o.amount)}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{amount: m.amount.Sub(o.amount)}
}

// Cmp compares m and o and returns -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	return m.amount.Cmp(o.amount)
}

// Equal reports whether m and o are the same amount.
func (m Money) Equal(o Money) bool {
	return m.amount.Equal(o.amount)
}

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Div returns m / o as an unrounded decimal ratio. o must not be zero.
func (m Money) Div(o Money) decimal.Decimal {
	return m.amount.DivRound(o.amount, 8)
}

// Convert multiplies the amount by an exchange rate and rounds to cents.
func (m Money) Convert(rate decimal.Decimal) Money {
	return NewMoney(m.amount.Mul(rate))
}

// Cents returns the amount in integer cents, used for persistence.
func (m Money) Cents() int64 {
	return m.amount.Shift(2).Round(0).IntPart()
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// Float64 returns the value as a float64 for display purposes only.
// Use Money arithmetic for calculations.
func (m Money) Float64() float64 {
	return m.amount.InexactFloat64()
}

// String renders the amount with exactly two decimals, e.g. "12.30".
func (m Money) String() string {
	return m.amount.StringFixed(2)
}
