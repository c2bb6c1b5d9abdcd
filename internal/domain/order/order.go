// Package order implements checkout: building a cart snapshot from the
// catalog, applying a coupon, and committing the order together with its
// coupon redemption in one transaction.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
)

// Item is a single line item in a committed order.
type Item struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is a committed customer order with pricing and discount details.
type Order struct {
	ID             string
	CustomerKey    string
	Items          []Item
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	FreeShip       bool
	CouponCode     string
	DeliveryMethod coupon.DeliveryMethod
	CreatedAt      time.Time
}

// Repository persists orders. When redemption is non-nil the implementation
// must insert the order and the redemption in a single transaction,
// re-verifying the coupon's usage limits under a row lock; on a limit
// breach it aborts and returns coupon.ErrConflict.
type Repository interface {
	Create(ctx context.Context, o *Order, c *coupon.Coupon, redemption *coupon.Redemption) error
}
