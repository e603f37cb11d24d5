// Package pricing implements the single rounding policy for credit
// amounts: unit prices are rounded once to five fractional digits and
// aggregate costs are the exact product of the rounded unit price and
// the item count. Decimal arithmetic avoids drift between backends.
package pricing

import "github.com/shopspring/decimal"

// Precision is the number of fractional digits credit amounts carry.
const Precision = 5

// UnitPrice applies a discount in [0,1] to a base price and rounds to
// the fixed precision. Rounding happens here, once per unit price,
// never on the aggregate.
func UnitPrice(base, discount float64) float64 {
	d := decimal.NewFromFloat(base).
		Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(discount))).
		Round(Precision)
	f, _ := d.Float64()
	return f
}

// Cost is the aggregate price of count items at an already-rounded
// unit price.
func Cost(unitPrice float64, count int) float64 {
	d := decimal.NewFromFloat(unitPrice).
		Mul(decimal.NewFromInt(int64(count))).
		Round(Precision)
	f, _ := d.Float64()
	return f
}

// Round normalizes an amount to the fixed precision. Used by the
// in-memory hot store so balances match what the Redis float
// operations would hold.
func Round(amount float64) float64 {
	f, _ := decimal.NewFromFloat(amount).Round(Precision).Float64()
	return f
}
