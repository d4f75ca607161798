package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value (unit cost, selling price) with full
// precision. decimal.Decimal avoids floating-point drift in cost-of-goods
// arithmetic.
type Money = decimal.Decimal

// NewMoney creates a Money value from a float.
// WARNING: prefer NewMoneyFromString for exact values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ZeroMoney returns the zero Money value.
func ZeroMoney() Money {
	return decimal.Zero
}

// CostOf multiplies a fixed-point quantity by a unit cost, producing
// an exact decimal amount (used for per-batch COGS).
func CostOf(qty Quantity, unitCost Money) Money {
	scaled := decimal.New(qty.Int64Scaled(), -4)
	return scaled.Mul(unitCost)
}
