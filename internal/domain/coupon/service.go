package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sweetoven/coupon-engine/internal/domain/cart"
	"github.com/sweetoven/coupon-engine/internal/domain/customer"
)

// Kind identifies the category of a validation failure, for clients that
// branch on the outcome rather than the display message.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindOutOfWindow         Kind = "out_of_window"
	KindBelowMinimum        Kind = "below_minimum"
	KindScopeMismatch       Kind = "scope_mismatch"
	KindCustomerNotEligible Kind = "customer_not_eligible"
	KindUsageExceeded       Kind = "usage_exceeded"
	KindConflict            Kind = "conflict"
)

// KindOf maps a validation sentinel to its Kind. Unknown errors map to an
// empty Kind.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrOutOfWindow):
		return KindOutOfWindow
	case errors.Is(err, ErrBelowMinimum):
		return KindBelowMinimum
	case errors.Is(err, ErrScopeMismatch):
		return KindScopeMismatch
	case errors.Is(err, ErrCustomerNotEligible):
		return KindCustomerNotEligible
	case errors.Is(err, ErrUsageExceeded):
		return KindUsageExceeded
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return ""
}

// IsValidationError reports whether err is one of the validation failure
// sentinels, as opposed to an infrastructure error.
func IsValidationError(err error) bool {
	return KindOf(err) != ""
}

const defaultSuccessMessage = "Coupon applied."

var defaultMessages = map[Kind]string{
	KindNotFound:            "This coupon code is not valid.",
	KindOutOfWindow:         "This coupon is not active right now.",
	KindBelowMinimum:        "Your order does not meet the minimum amount for this coupon.",
	KindScopeMismatch:       "This coupon does not apply to the items in your cart.",
	KindCustomerNotEligible: "This coupon is not available for your account.",
	KindUsageExceeded:       "This coupon has reached its usage limit.",
	KindConflict:            "This coupon was just claimed by another order, please try again.",
}

// Result is the outcome of validating a code against a cart. Failures are
// data, not errors: every restriction miss lands here with a display
// message, never as an error crossing the API boundary.
type Result struct {
	Valid          bool
	Coupon         *Coupon
	DiscountAmount decimal.Decimal
	FreeShip       bool
	Message        string
	ErrorKind      Kind
}

// Service orchestrates coupon validation: definition lookup, eligibility,
// usage caps, and discount calculation, in that order.
type Service struct {
	repo  Repository
	eval  *Evaluator
	usage *Tracker
	now   func() time.Time
}

// NewService creates a validation Service.
func NewService(repo Repository, eval *Evaluator, usage *Tracker) *Service {
	return &Service{repo: repo, eval: eval, usage: usage, now: time.Now}
}

// Validate checks whether code applies to the given cart and customer and
// computes the exact discount. Validation is read-only; it never reserves a
// usage slot. A non-nil error indicates an infrastructure failure only.
func (s *Service) Validate(
	ctx context.Context,
	code string,
	snap cart.Snapshot,
	id customer.Identity,
	in CheckInput,
) (*Result, error) {
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return failure(nil, err), nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := s.now()

	eligible, err := s.eval.Check(ctx, c, snap, id, now, in)
	if err != nil {
		if IsValidationError(err) {
			return failure(c, err), nil
		}
		return nil, err
	}

	if err := s.usage.Check(ctx, c, id.Key()); err != nil {
		if IsValidationError(err) {
			return failure(c, err), nil
		}
		return nil, err
	}

	d, err := Compute(c, eligible.Subtotal)
	if err != nil {
		return nil, errors.Wrap(err, "compute discount")
	}

	msg := c.SuccessMessage
	if msg == "" {
		msg = defaultSuccessMessage
	}
	return &Result{
		Valid:          true,
		Coupon:         c,
		DiscountAmount: d.Amount,
		FreeShip:       d.FreeShip,
		Message:        msg,
	}, nil
}

// failure builds an invalid Result for the given sentinel. The coupon's
// configured error message, when set, overrides the per-kind default.
func failure(c *Coupon, err error) *Result {
	kind := KindOf(err)
	msg := defaultMessages[kind]
	if c != nil && c.ErrorMessage != "" {
		msg = c.ErrorMessage
	}
	return &Result{
		Valid:          false,
		Coupon:         c,
		DiscountAmount: decimal.Zero,
		Message:        msg,
		ErrorKind:      kind,
	}
}
