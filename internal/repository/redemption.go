package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
)

const (
	countByCouponSQL         = `SELECT COUNT(*) FROM redemptions WHERE coupon_id = $1`
	countByCouponCustomerSQL = `SELECT COUNT(*) FROM redemptions WHERE coupon_id = $1 AND customer_key = $2`
)

var _ coupon.Ledger = (*RedemptionLedger)(nil)

// RedemptionLedger implements coupon.Ledger over the append-only
// redemptions table.
type RedemptionLedger struct {
	pool *pgxpool.Pool
}

// NewRedemptionLedger returns a RedemptionLedger that uses the given pool.
func NewRedemptionLedger(pool *pgxpool.Pool) *RedemptionLedger {
	return &RedemptionLedger{pool: pool}
}

// CountByCoupon returns the number of redemptions recorded for a coupon.
func (r *RedemptionLedger) CountByCoupon(ctx context.Context, couponID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countByCouponSQL, couponID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting redemptions for coupon %d: %w", couponID, err)
	}
	return n, nil
}

// CountByCouponAndCustomer returns the number of redemptions a customer has
// recorded for a coupon.
func (r *RedemptionLedger) CountByCouponAndCustomer(ctx context.Context, couponID int64, customerKey string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countByCouponCustomerSQL, couponID, customerKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting customer redemptions for coupon %d: %w", couponID, err)
	}
	return n, nil
}
