package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount is the computed outcome of applying a coupon to an eligible
// subtotal.
type Discount struct {
	Amount   decimal.Decimal
	FreeShip bool
}

// Compute calculates the discount for an eligible subtotal. It is a pure
// function over the closed set of discount types; adding a type without
// handling it here is a runtime error, not a silent zero.
//
// Amounts round half-up to the currency's smallest unit, applied once on
// the final amount rather than per line to avoid cumulative rounding drift.
func Compute(c *Coupon, eligibleSubtotal decimal.Decimal) (Discount, error) {
	switch c.DiscountType {
	case DiscountPercent:
		amount := eligibleSubtotal.Mul(c.DiscountValue).Div(hundred).Round(0)
		if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
			amount = *c.MaxDiscount
		}
		return Discount{Amount: clamp(amount, eligibleSubtotal)}, nil

	case DiscountFixed:
		amount := decimal.Min(c.DiscountValue, eligibleSubtotal).Round(0)
		return Discount{Amount: clamp(amount, eligibleSubtotal)}, nil

	case DiscountFreeShip:
		return Discount{Amount: decimal.Zero, FreeShip: true}, nil

	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
}

// clamp bounds the amount to [0, max] so an order total can never go
// negative.
func clamp(d, max decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}
