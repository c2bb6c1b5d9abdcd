package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweetoven/coupon-engine/internal/domain/customer"
)

// Cancelled orders do not count towards the new/returning classification.
const countCompletedOrdersSQL = `SELECT COUNT(*) FROM orders
	WHERE customer_key = $1 AND status = 'completed'`

var _ customer.History = (*CustomerHistory)(nil)

// CustomerHistory answers order-history questions from the orders table.
type CustomerHistory struct {
	pool *pgxpool.Pool
}

// NewCustomerHistory returns a CustomerHistory that uses the given pool.
func NewCustomerHistory(pool *pgxpool.Pool) *CustomerHistory {
	return &CustomerHistory{pool: pool}
}

// CompletedOrders returns the number of completed orders for a customer key.
func (r *CustomerHistory) CompletedOrders(ctx context.Context, key string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCompletedOrdersSQL, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting completed orders: %w", err)
	}
	return n, nil
}
