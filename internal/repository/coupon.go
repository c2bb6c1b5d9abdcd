package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
)

const getCouponByCodeSQL = `SELECT id, code, name, description,
		discount_type, discount_value, max_discount, min_order_amount,
		apply_to, category_ids, product_ids, exclude_product_ids, exclude_sale_items,
		delivery_method, advance_hours,
		customer_restriction, allowed_customer_emails,
		start_date, end_date, time_restriction,
		total_usage_limit, usage_per_customer, can_stack_with_ship,
		success_message, error_message
	FROM coupons WHERE UPPER(code) = $1 AND status = 'active'`

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its normalized code. Absent and
// inactive coupons both return coupon.ErrNotFound; callers must not be able
// to enumerate disabled codes.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code: %w", err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		applyTo      string
		delivery     string
		restriction  string
		maxDiscount  *decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description,
		&discountType, &c.DiscountValue, &maxDiscount, &c.MinOrderAmount,
		&applyTo, &c.CategoryIDs, &c.ProductIDs, &c.ExcludeProductIDs, &c.ExcludeSaleItems,
		&delivery, &c.AdvanceHours,
		&restriction, &c.AllowedCustomerEmails,
		&c.StartDate, &c.EndDate, &c.TimeRestriction,
		&c.TotalUsageLimit, &c.UsagePerCustomer, &c.CanStackWithShip,
		&c.SuccessMessage, &c.ErrorMessage,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.ApplyTo = coupon.ApplyTo(applyTo)
	c.DeliveryMethod = coupon.DeliveryMethod(delivery)
	c.CustomerRestriction = coupon.CustomerRestriction(restriction)
	c.MaxDiscount = maxDiscount
	return c, err
}
