// Package cart defines the immutable cart snapshot the coupon engine
// validates against. The snapshot is built by the caller from catalog data
// at validation time; the engine never mutates it.
package cart

import "github.com/shopspring/decimal"

// Line is a single cart line with the catalog facts (category, sale flag)
// resolved at snapshot time.
type Line struct {
	ProductID  string
	Quantity   int
	UnitPrice  decimal.Decimal
	CategoryID int64
	OnSale     bool
}

// Total returns unit price multiplied by quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is an ordered sequence of cart lines.
type Snapshot struct {
	Lines []Line
}

// Subtotal returns the sum of line totals across the whole cart.
func (s Snapshot) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}
