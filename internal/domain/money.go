package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with currency. Immutable; every
// operation returns a new value. Arithmetic across currencies is an error.
type Money struct {
	Currency Currency        `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// NewMoney creates a new Money value
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// NewMoneyFromFloat creates a Money value from a float amount
func NewMoneyFromFloat(amount float64, currency Currency) Money {
	return NewMoney(decimal.NewFromFloat(amount), currency)
}

// ZeroMoney returns the zero value in the given currency
func ZeroMoney(currency Currency) Money {
	return NewMoney(decimal.Zero, currency)
}

// Add returns m + other. Fails when currencies differ.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return NewMoney(m.Amount.Add(other.Amount), m.Currency), nil
}

// Sub returns m - other. Fails when currencies differ.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return NewMoney(m.Amount.Sub(other.Amount), m.Currency), nil
}

// Mul returns m scaled by factor
func (m Money) Mul(factor decimal.Decimal) Money {
	return NewMoney(m.Amount.Mul(factor), m.Currency)
}

// Div returns m divided by divisor. Division by zero fails.
func (m Money) Div(divisor decimal.Decimal) (Money, error) {
	if divisor.IsZero() {
		return Money{}, fmt.Errorf("division by zero")
	}
	return NewMoney(m.Amount.Div(divisor), m.Currency), nil
}

// Neg returns -m
func (m Money) Neg() Money {
	return NewMoney(m.Amount.Neg(), m.Currency)
}

// IsZero reports whether the amount is zero
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// IsNegative reports whether the amount is below zero
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Equal reports value equality (same currency, same amount)
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Float64 returns the amount as a float64, losing decimal exactness
func (m Money) Float64() float64 {
	f, _ := m.Amount.Float64()
	return f
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

// Percentage is a fractional value. PercentFromPercent(5) and
// PercentFromDecimal(0.05) construct the same value. Immutable.
type Percentage struct {
	value float64 // stored as the decimal fraction
}

// PercentFromPercent builds a Percentage from a percent figure (5 -> 5%)
func PercentFromPercent(v float64) Percentage {
	return Percentage{value: v / 100}
}

// PercentFromDecimal builds a Percentage from a decimal fraction (0.05 -> 5%)
func PercentFromDecimal(v float64) Percentage {
	return Percentage{value: v}
}

// AsPercent returns the value scaled to percent (0.05 -> 5)
func (p Percentage) AsPercent() float64 {
	return p.value * 100
}

// AsDecimal returns the value as a decimal fraction (5% -> 0.05)
func (p Percentage) AsDecimal() float64 {
	return p.value
}

func (p Percentage) String() string {
	return fmt.Sprintf("%.2f%%", p.AsPercent())
}

// MarshalJSON encodes the decimal fraction
func (p Percentage) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%g", p.value)), nil
}

// UnmarshalJSON decodes a decimal fraction
func (p *Percentage) UnmarshalJSON(data []byte) error {
	var v float64
	if _, err := fmt.Sscanf(string(data), "%g", &v); err != nil {
		return fmt.Errorf("failed to parse percentage: %w", err)
	}
	p.value = v
	return nil
}
