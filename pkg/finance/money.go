// Package finance provides integer minor-unit money arithmetic for the
// checkout pipeline. All amounts are carried as int64 minor units (paise,
// cents); floating point never enters a money computation.
package finance

import (
	"fmt"
	"math/big"

	"golang.org/x/text/currency"
)

// Money represents a monetary value in a specific currency.
type Money struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"` // ISO 4217 code
	Scale       int    `json:"scale"`    // e.g. 2 for INR/USD
}

// New creates a Money value in the given ISO 4217 currency.
// The currency code is validated; unknown codes are rejected. The scale
// comes from the currency itself (2 for INR/USD, 0 for JPY).
func New(amountMinor int64, code string) (Money, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Money{}, fmt.Errorf("invalid currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Money{
		AmountMinor: amountMinor,
		Currency:    unit.String(),
		Scale:       scale,
	}, nil
}

// Of builds a Money for an amount whose currency was already validated
// upstream (orders only ever carry codes accepted by New). Unknown codes
// keep the code verbatim with a scale of 2 rather than failing a render.
func Of(amountMinor int64, code string) Money {
	m, err := New(amountMinor, code)
	if err != nil {
		return Money{AmountMinor: amountMinor, Currency: code, Scale: 2}
	}
	return m
}

// MustNew is New for statically known currency codes.
func MustNew(amountMinor int64, code string) Money {
	m, err := New(amountMinor, code)
	if err != nil {
		panic(err)
	}
	return m
}

// Add adds two Money amounts. Returns error on currency mismatch.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{
		AmountMinor: m.AmountMinor + other.AmountMinor,
		Currency:    m.Currency,
		Scale:       m.Scale,
	}, nil
}

// MulQty multiplies a unit price by a line quantity.
// Quantity must be positive; overflow is rejected.
func (m Money) MulQty(qty int64) (Money, error) {
	if qty <= 0 {
		return Money{}, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	product := m.AmountMinor * qty
	if m.AmountMinor != 0 && product/m.AmountMinor != qty {
		return Money{}, fmt.Errorf("amount overflow: %d * %d", m.AmountMinor, qty)
	}
	return Money{
		AmountMinor: product,
		Currency:    m.Currency,
		Scale:       m.Scale,
	}, nil
}

// IsZero returns true if the amount is 0.
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// IsPositive returns true if the amount is > 0.
func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

// MajorString renders the amount in major units for display only
// (e.g. 30000 minor -> "300.00"). Money math never uses this form.
func (m Money) MajorString() string {
	minor := m.AmountMinor
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	if m.Scale <= 0 {
		return fmt.Sprintf("%s%d", sign, minor)
	}
	div := int64(1)
	for i := 0; i < m.Scale; i++ {
		div *= 10
	}
	return fmt.Sprintf("%s%d.%0*d", sign, minor/div, m.Scale, minor%div)
}

// ToChainUnits converts a minor-unit amount to on-chain smallest units
// (e.g. wei) using a fixed per-minor-unit rate. The result exceeds int64
// range for realistic rates, so it is returned as a big.Int.
func (m Money) ToChainUnits(weiPerMinor *big.Int) *big.Int {
	return new(big.Int).Mul(big.NewInt(m.AmountMinor), weiPerMinor)
}

// Sum folds line subtotals into an order total. An empty input is an error:
// an order with no lines has no meaningful total.
func Sum(amounts []Money) (Money, error) {
	if len(amounts) == 0 {
		return Money{}, fmt.Errorf("cannot sum zero amounts")
	}
	total := amounts[0]
	for _, a := range amounts[1:] {
		var err error
		total, err = total.Add(a)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
