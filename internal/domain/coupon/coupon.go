// Package coupon implements the promotional code validation engine:
// definition lookup, eligibility rules, discount calculation, and usage
// accounting against the redemption ledger.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent applies a percentage discount to the eligible subtotal,
	// optionally capped by MaxDiscount.
	DiscountPercent DiscountType = "percent"
	// DiscountFixed applies a fixed monetary discount capped at the eligible
	// subtotal.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeShip waives the shipping fee instead of discounting items.
	DiscountFreeShip DiscountType = "free_ship"
)

// ApplyTo enumerates the scope a coupon applies to.
type ApplyTo string

const (
	ApplyAll      ApplyTo = "all"
	ApplyCategory ApplyTo = "category"
	ApplyProduct  ApplyTo = "product"
)

// DeliveryMethod restricts a coupon to a fulfillment method. The same values
// are used for the order's requested method (minus DeliveryAll).
type DeliveryMethod string

const (
	DeliveryAll      DeliveryMethod = "all"
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

// CustomerRestriction limits which customers may use a coupon.
type CustomerRestriction string

const (
	CustomerAll       CustomerRestriction = "all"
	CustomerNew       CustomerRestriction = "new"
	CustomerReturning CustomerRestriction = "returning"
	CustomerSpecific  CustomerRestriction = "specific"
)

// Validation failure sentinels. Inactive coupons surface as ErrNotFound so
// callers cannot distinguish absent from disabled codes.
var (
	ErrNotFound            = errors.New("coupon not found")
	ErrOutOfWindow         = errors.New("coupon outside its active window")
	ErrBelowMinimum        = errors.New("order below coupon minimum")
	ErrScopeMismatch       = errors.New("coupon does not apply to cart")
	ErrCustomerNotEligible = errors.New("customer not eligible for coupon")
	ErrUsageExceeded       = errors.New("coupon usage limit reached")
	// ErrConflict is returned at redemption time only, when a concurrent
	// checkout consumed the last usage slot first.
	ErrConflict = errors.New("coupon usage conflict")
)

// Coupon is a promotional code definition. It is read-only to this engine;
// rows are created and edited by the admin back-office.
type Coupon struct {
	ID          int64
	Code        string
	Name        string
	Description string

	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	// MaxDiscount caps a percent discount. Nil means uncapped.
	MaxDiscount    *decimal.Decimal
	MinOrderAmount decimal.Decimal

	ApplyTo           ApplyTo
	CategoryIDs       []int64
	ProductIDs        []string
	ExcludeProductIDs []string
	ExcludeSaleItems  bool

	DeliveryMethod DeliveryMethod
	AdvanceHours   int

	CustomerRestriction   CustomerRestriction
	AllowedCustomerEmails []string

	// StartDate and EndDate bound the activity window, inclusive on both
	// ends. Nil means unbounded on that side.
	StartDate *time.Time
	EndDate   *time.Time
	// TimeRestriction is an optional daily window "HH:MM-HH:MM" in the
	// shop's local time. Windows do not wrap past midnight.
	TimeRestriction string

	// TotalUsageLimit of 0 means unlimited.
	TotalUsageLimit  int
	UsagePerCustomer int
	CanStackWithShip bool

	SuccessMessage string
	ErrorMessage   string
}

// NormalizeCode canonicalizes a user-supplied code for lookup and
// comparison: trimmed and uppercased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup of active coupon definitions.
type Repository interface {
	// FindByCode returns the active coupon matching the normalized code.
	// Returns ErrNotFound when the code is absent or the coupon is inactive.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Ledger counts redemptions. Redemption rows are the sole source of truth
// for usage; there is no counter column to drift.
type Ledger interface {
	CountByCoupon(ctx context.Context, couponID int64) (int, error)
	CountByCouponAndCustomer(ctx context.Context, couponID int64, customerKey string) (int, error)
}

// Redemption records one successful application of a coupon to one order.
// Rows are created exactly once per order, inside the order transaction,
// and never mutated.
type Redemption struct {
	CouponID       int64
	CustomerKey    string
	OrderID        string
	DiscountAmount decimal.Decimal
	CreatedAt      time.Time
}

// TimeWindow is a parsed daily time restriction, in minutes from midnight.
type TimeWindow struct {
	StartMinute int
	EndMinute   int
}

// Contains reports whether the given local time falls inside the window,
// inclusive on both ends.
func (w TimeWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.StartMinute && m <= w.EndMinute
}

// ParseTimeWindow parses a "HH:MM-HH:MM" daily window. Windows that wrap
// past midnight (start after end) are rejected.
func ParseTimeWindow(s string) (TimeWindow, error) {
	var w TimeWindow
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return w, errors.Errorf("malformed time window %q", s)
	}
	start, err := parseMinute(parts[0])
	if err != nil {
		return w, err
	}
	end, err := parseMinute(parts[1])
	if err != nil {
		return w, err
	}
	if start > end {
		return w, errors.Errorf("time window %q wraps past midnight", s)
	}
	w.StartMinute = start
	w.EndMinute = end
	return w, nil
}

func parseMinute(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, errors.Wrapf(err, "parse time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, errors.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}
