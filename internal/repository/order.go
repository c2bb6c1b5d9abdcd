package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
	"github.com/sweetoven/coupon-engine/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, customer_key, items, subtotal, discount, total, free_ship, coupon_code, delivery_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	lockCouponSQL = `SELECT id FROM coupons WHERE id = $1 FOR UPDATE`

	insertRedemptionSQL = `INSERT INTO redemptions
		(coupon_id, customer_key, order_id, discount_amount)
		VALUES ($1, $2, $3, $4)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists an order. When a redemption is supplied, the order and
// the redemption are committed in one transaction: the coupon row is
// locked, the ledger recounted, and the insert abandoned with
// coupon.ErrConflict if a concurrent checkout got there first. Two
// checkouts racing for the last usage slot cannot both succeed.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, c *coupon.Coupon, red *coupon.Redemption) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.CustomerKey, itemsJSON, o.Subtotal, o.Discount, o.Total,
		o.FreeShip, o.CouponCode, string(o.DeliveryMethod),
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	if red != nil {
		if err := r.redeem(ctx, tx, c, red); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// redeem re-verifies the coupon's usage limits under a row lock and inserts
// the redemption. The validation-time usage check is advisory; this is the
// authoritative one.
func (r *OrderRepository) redeem(ctx context.Context, tx pgx.Tx, c *coupon.Coupon, red *coupon.Redemption) error {
	var lockedID int64
	if err := tx.QueryRow(ctx, lockCouponSQL, red.CouponID).Scan(&lockedID); err != nil {
		return fmt.Errorf("locking coupon %d: %w", red.CouponID, err)
	}

	if c.TotalUsageLimit > 0 {
		var n int
		if err := tx.QueryRow(ctx, countByCouponSQL, red.CouponID).Scan(&n); err != nil {
			return fmt.Errorf("recounting redemptions: %w", err)
		}
		if n >= c.TotalUsageLimit {
			return coupon.ErrConflict
		}
	}

	if red.CustomerKey != "" {
		perCustomer := c.UsagePerCustomer
		if perCustomer <= 0 {
			perCustomer = 1
		}
		var n int
		if err := tx.QueryRow(ctx, countByCouponCustomerSQL, red.CouponID, red.CustomerKey).Scan(&n); err != nil {
			return fmt.Errorf("recounting customer redemptions: %w", err)
		}
		if n >= perCustomer {
			return coupon.ErrConflict
		}
	}

	_, err := tx.Exec(ctx, insertRedemptionSQL,
		red.CouponID, red.CustomerKey, red.OrderID, red.DiscountAmount,
	)
	if err != nil {
		return fmt.Errorf("inserting redemption: %w", err)
	}
	return nil
}
