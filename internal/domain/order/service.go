package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sweetoven/coupon-engine/internal/domain/cart"
	"github.com/sweetoven/coupon-engine/internal/domain/catalog"
	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
	"github.com/sweetoven/coupon-engine/internal/domain/customer"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = fmt.Errorf("items required")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// CouponRejectedError carries the validation result of a coupon that did
// not apply at checkout. The result's message is safe to show the customer.
type CouponRejectedError struct {
	Result *coupon.Result
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", e.Result.ErrorKind)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items          []Item
	CouponCode     string
	Customer       customer.Identity
	DeliveryMethod coupon.DeliveryMethod
	FulfillmentAt  *time.Time
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order         *Order
	CouponMessage string
}

// Service encapsulates checkout business logic.
type Service struct {
	products catalog.Repository
	coupons  *coupon.Service
	orders   Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products catalog.Repository, coupons *coupon.Service, orders Repository) *Service {
	return &Service{products: products, coupons: coupons, orders: orders}
}

// PlaceOrder validates items, builds the cart snapshot from catalog facts,
// validates and applies an optional coupon, and commits the order. When a
// coupon is applied, the redemption is written in the same transaction as
// the order; a concurrent checkout that exhausts the coupon's limit first
// surfaces as coupon.ErrConflict.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Build the snapshot with authoritative catalog prices and facts.
	snap := cart.Snapshot{Lines: make([]cart.Line, len(req.Items))}
	items := make([]Item, len(req.Items))
	for i, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		snap.Lines[i] = cart.Line{
			ProductID:  p.ID,
			Quantity:   item.Quantity,
			UnitPrice:  p.Price,
			CategoryID: p.CategoryID,
			OnSale:     p.OnSale,
		}
		items[i] = Item{ProductID: p.ID, Quantity: item.Quantity, UnitPrice: p.Price}
	}
	subtotal := snap.Subtotal()

	// Validate the coupon against the final snapshot. The result is
	// advisory; the transactional re-check below is authoritative.
	var (
		applied  *coupon.Coupon
		discount = decimal.Zero
		freeShip bool
		message  string
	)
	if req.CouponCode != "" {
		res, err := s.coupons.Validate(ctx, req.CouponCode, snap, req.Customer, coupon.CheckInput{
			DeliveryMethod: req.DeliveryMethod,
			FulfillmentAt:  req.FulfillmentAt,
		})
		if err != nil {
			return nil, fmt.Errorf("validate coupon: %w", err)
		}
		if !res.Valid {
			return nil, &CouponRejectedError{Result: res}
		}
		applied = res.Coupon
		discount = res.DiscountAmount
		freeShip = res.FreeShip
		message = res.Message
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := &Order{
		ID:             uuid.New().String(),
		CustomerKey:    req.Customer.Key(),
		Items:          items,
		Subtotal:       subtotal,
		Discount:       discount,
		Total:          total,
		FreeShip:       freeShip,
		CouponCode:     coupon.NormalizeCode(req.CouponCode),
		DeliveryMethod: req.DeliveryMethod,
	}

	var red *coupon.Redemption
	if applied != nil {
		red = &coupon.Redemption{
			CouponID:       applied.ID,
			CustomerKey:    o.CustomerKey,
			OrderID:        o.ID,
			DiscountAmount: discount,
		}
	}
	if err := s.orders.Create(ctx, o, applied, red); err != nil {
		// coupon.ErrConflict passes through untouched so the handler can
		// tell the customer to re-validate and retry.
		return nil, fmt.Errorf("create order: %w", err)
	}

	return &PlaceOrderResult{Order: o, CouponMessage: message}, nil
}
