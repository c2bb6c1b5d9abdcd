package coupon

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sweetoven/coupon-engine/internal/domain/cart"
	"github.com/sweetoven/coupon-engine/internal/domain/customer"
)

// CheckInput carries the order context the cart snapshot alone does not
// know: the requested fulfillment, and whether a free-shipping promotion is
// already active on the cart (made explicit by the caller rather than
// inferred by the engine).
type CheckInput struct {
	DeliveryMethod DeliveryMethod
	// FulfillmentAt is the requested pickup/delivery time. When nil, the
	// advance-hours check is skipped.
	FulfillmentAt      *time.Time
	ShipDiscountActive bool
}

// Eligible is the scoped portion of the cart a coupon may discount.
type Eligible struct {
	Lines    []cart.Line
	Subtotal decimal.Decimal
}

// Evaluator applies all non-monetary coupon restrictions to a cart and
// customer. Checks run in a fixed order and short-circuit on the first
// failure, so error messages are deterministic.
type Evaluator struct {
	history customer.History
	loc     *time.Location
}

// NewEvaluator creates an Evaluator. The location is the shop's local time
// zone, used to interpret daily time restrictions.
func NewEvaluator(history customer.History, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{history: history, loc: loc}
}

// Check runs the restriction checks in order: activity window, daily time
// window, scope, minimum order (against the scoped subtotal), delivery
// method, advance hours, free-shipping stacking, customer restriction.
// On success it returns the eligible cart lines and their subtotal.
func (e *Evaluator) Check(
	ctx context.Context,
	c *Coupon,
	snap cart.Snapshot,
	id customer.Identity,
	now time.Time,
	in CheckInput,
) (*Eligible, error) {
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return nil, ErrOutOfWindow
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return nil, ErrOutOfWindow
	}

	if c.TimeRestriction != "" {
		w, err := ParseTimeWindow(c.TimeRestriction)
		if err != nil {
			// Misconfigured window fails closed rather than opening the
			// coupon outside its intended hours.
			return nil, ErrOutOfWindow
		}
		if !w.Contains(now.In(e.loc)) {
			return nil, ErrOutOfWindow
		}
	}

	eligible := e.scopedLines(c, snap)
	if len(eligible) == 0 {
		return nil, ErrScopeMismatch
	}

	subtotal := decimal.Zero
	for _, l := range eligible {
		subtotal = subtotal.Add(l.Total())
	}
	// The minimum is checked against the scoped subtotal, not the full cart:
	// a category-restricted coupon cannot be unlocked by unrelated items.
	if subtotal.LessThan(c.MinOrderAmount) {
		return nil, ErrBelowMinimum
	}

	if c.DeliveryMethod != DeliveryAll && in.DeliveryMethod != c.DeliveryMethod {
		return nil, ErrScopeMismatch
	}

	if c.AdvanceHours > 0 && in.FulfillmentAt != nil {
		lead := time.Duration(c.AdvanceHours) * time.Hour
		if in.FulfillmentAt.Sub(now) < lead {
			return nil, ErrOutOfWindow
		}
	}

	if in.ShipDiscountActive && !c.CanStackWithShip {
		return nil, ErrScopeMismatch
	}

	if err := e.checkCustomer(ctx, c, id); err != nil {
		return nil, err
	}

	return &Eligible{Lines: eligible, Subtotal: subtotal}, nil
}

// scopedLines filters the cart down to the lines the coupon may discount:
// the ApplyTo scope, minus excluded products, minus on-sale items when the
// coupon excludes them.
func (e *Evaluator) scopedLines(c *Coupon, snap cart.Snapshot) []cart.Line {
	lines := make([]cart.Line, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		switch c.ApplyTo {
		case ApplyCategory:
			if !slices.Contains(c.CategoryIDs, l.CategoryID) {
				continue
			}
		case ApplyProduct:
			if !slices.Contains(c.ProductIDs, l.ProductID) {
				continue
			}
		}
		if slices.Contains(c.ExcludeProductIDs, l.ProductID) {
			continue
		}
		if c.ExcludeSaleItems && l.OnSale {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

func (e *Evaluator) checkCustomer(ctx context.Context, c *Coupon, id customer.Identity) error {
	if c.CustomerRestriction == CustomerAll {
		return nil
	}
	if id.IsZero() {
		return ErrCustomerNotEligible
	}

	switch c.CustomerRestriction {
	case CustomerSpecific:
		email := strings.ToLower(strings.TrimSpace(id.Email))
		if email == "" {
			return ErrCustomerNotEligible
		}
		for _, allowed := range c.AllowedCustomerEmails {
			if strings.ToLower(strings.TrimSpace(allowed)) == email {
				return nil
			}
		}
		return ErrCustomerNotEligible

	case CustomerNew, CustomerReturning:
		n, err := e.history.CompletedOrders(ctx, id.Key())
		if err != nil {
			return errors.Wrap(err, "count completed orders")
		}
		if c.CustomerRestriction == CustomerNew && n > 0 {
			return ErrCustomerNotEligible
		}
		if c.CustomerRestriction == CustomerReturning && n == 0 {
			return ErrCustomerNotEligible
		}
		return nil

	default:
		return ErrCustomerNotEligible
	}
}
