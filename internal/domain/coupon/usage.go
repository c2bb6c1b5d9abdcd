package coupon

import (
	"context"

	"github.com/go-faster/errors"
)

// Tracker checks a coupon's usage caps against the redemption ledger.
//
// The check is advisory: validation never reserves a usage slot. The
// authoritative re-check happens inside the order transaction at
// redemption time.
type Tracker struct {
	ledger Ledger
}

// NewTracker creates a Tracker backed by the given ledger.
func NewTracker(ledger Ledger) *Tracker {
	return &Tracker{ledger: ledger}
}

// Check returns ErrUsageExceeded when the coupon's global limit is reached
// (a limit of 0 is unlimited) or the customer has exhausted their personal
// allowance. An unidentified customer skips the per-customer check.
func (t *Tracker) Check(ctx context.Context, c *Coupon, customerKey string) error {
	if c.TotalUsageLimit > 0 {
		n, err := t.ledger.CountByCoupon(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "count redemptions")
		}
		if n >= c.TotalUsageLimit {
			return ErrUsageExceeded
		}
	}

	if customerKey == "" {
		return nil
	}

	perCustomer := c.UsagePerCustomer
	if perCustomer <= 0 {
		perCustomer = 1
	}
	n, err := t.ledger.CountByCouponAndCustomer(ctx, c.ID, customerKey)
	if err != nil {
		return errors.Wrap(err, "count customer redemptions")
	}
	if n >= perCustomer {
		return ErrUsageExceeded
	}
	return nil
}
