package valueobject

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of decimal places every stored amount carries
	MoneyScale int32 = 2
	// RateScale is the number of decimal places share and discount rates carry
	RateScale int32 = 8
)

// RoundMoney rounds x to two decimal places, half away from zero (0.005 -> 0.01).
// Every monetary amount is passed through this before it is stored or compared.
func RoundMoney(x decimal.Decimal) decimal.Decimal {
	return x.Round(MoneyScale)
}

// RoundRate rounds x to eight decimal places using the same rounding mode as RoundMoney
func RoundRate(x decimal.Decimal) decimal.Decimal {
	return x.Round(RateScale)
}

// ParseMoney parses a decimal string and rounds it to money scale
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return RoundMoney(d), nil
}

// MoneyString renders an amount with exactly two fraction digits
func MoneyString(x decimal.Decimal) string {
	return RoundMoney(x).StringFixed(MoneyScale)
}

// RateString renders a rate with exactly eight fraction digits
func RateString(x decimal.Decimal) string {
	return RoundRate(x).StringFixed(RateScale)
}

// MinMoney returns the smaller of a and b
func MinMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// SumMoney adds amounts and rounds the total
func SumMoney(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return RoundMoney(total)
}

// Money is an immutable amount in the platform's single settlement currency.
// It is stored rounded to MoneyScale.
type Money struct {
	amount decimal.Decimal
}

// NewMoney creates Money rounded to money scale
func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: RoundMoney(amount)}
}

// NewMoneyFromString parses and rounds an amount string
func NewMoneyFromString(amount string) (Money, error) {
	d, err := ParseMoney(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: d}, nil
}

// ZeroMoney returns a zero amount
func ZeroMoney() Money {
	return Money{amount: decimal.Zero}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Add returns the rounded sum
func (m Money) Add(other Money) Money {
	return NewMoney(m.amount.Add(other.amount))
}

// Sub returns the rounded difference
func (m Money) Sub(other Money) Money {
	return NewMoney(m.amount.Sub(other.amount))
}

// MulRate multiplies by a rate and rounds the product to money scale
func (m Money) MulRate(rate decimal.Decimal) Money {
	return NewMoney(m.amount.Mul(rate))
}

// Equal compares two amounts
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// String returns the fixed two-decimal representation
func (m Money) String() string {
	return MoneyString(m.amount)
}

// Value implements driver.Valuer
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner
func (m *Money) Scan(value any) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("failed to scan money: %w", err)
	}
	m.amount = RoundMoney(d)
	return nil
}
