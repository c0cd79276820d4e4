// Package commission computes referral commissions on purchases.
package commission

import (
	"github.com/shopspring/decimal"
)

// DefaultRate is the share of a purchase price paid to the buyer's referrer.
var DefaultRate = decimal.RequireFromString("0.05")

// Calculator applies a fixed commission rate.
type Calculator struct {
	rate decimal.Decimal
}

// NewCalculator returns a calculator for rate. Rates outside [0, 1] fall back to DefaultRate.
func NewCalculator(rate decimal.Decimal) Calculator {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = DefaultRate
	}
	return Calculator{rate: rate}
}

// Rate returns the configured rate.
func (c Calculator) Rate() decimal.Decimal { return c.rate }

// Compute returns floor(price * rate). Non-positive prices earn nothing.
func (c Calculator) Compute(price int64) int64 {
	if price <= 0 {
		return 0
	}
	return decimal.NewFromInt(price).Mul(c.rate).Floor().IntPart()
}
