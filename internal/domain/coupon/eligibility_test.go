package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetoven/coupon-engine/internal/domain/cart"
	"github.com/sweetoven/coupon-engine/internal/domain/customer"
)

type mockHistory struct {
	completed int
	err       error
	gotKey    string
}

func (m *mockHistory) CompletedOrders(_ context.Context, key string) (int, error) {
	m.gotKey = key
	return m.completed, m.err
}

func vnd(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func cakeCart() cart.Snapshot {
	return cart.Snapshot{Lines: []cart.Line{
		{ProductID: "tiramisu-slice", Quantity: 2, UnitPrice: vnd(55000), CategoryID: 1},
		{ProductID: "ca-phe-sua", Quantity: 1, UnitPrice: vnd(30000), CategoryID: 3},
	}}
}

func TestEvaluator_Check(t *testing.T) {
	// Saturday 10:30 local time.
	fixedNow := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-48 * time.Hour)
	futureTime := fixedNow.Add(48 * time.Hour)

	tests := []struct {
		name         string
		coupon       *Coupon
		snap         cart.Snapshot
		id           customer.Identity
		in           CheckInput
		history      *mockHistory
		wantSubtotal decimal.Decimal
		wantLines    int
		wantErr      error
	}{
		{
			name:         "unrestricted coupon passes with full cart",
			coupon:       &Coupon{ApplyTo: ApplyAll, CustomerRestriction: CustomerAll},
			snap:         cakeCart(),
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "not started yet",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerAll,
				StartDate: &futureTime,
			},
			snap:    cakeCart(),
			wantErr: ErrOutOfWindow,
		},
		{
			name: "expired",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerAll,
				EndDate: &pastTime,
			},
			snap:    cakeCart(),
			wantErr: ErrOutOfWindow,
		},
		{
			name: "end date is inclusive",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerAll,
				EndDate: &fixedNow,
			},
			snap:         cakeCart(),
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "inside daily time window",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerAll,
				TimeRestriction: "09:00-11:00",
			},
			snap:         cakeCart(),
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "outside daily time window",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerAll,
				TimeRestriction: "14:00-17:00",
			},
			snap:    cakeCart(),
			wantErr: ErrOutOfWindow,
		},
		{
			name: "malformed time window fails closed",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerAll,
				TimeRestriction: "whenever",
			},
			snap:    cakeCart(),
			wantErr: ErrOutOfWindow,
		},
		{
			name: "category scope keeps only matching lines",
			coupon: &Coupon{
				ApplyTo: ApplyCategory, CategoryIDs: []int64{1},
				CustomerRestriction: CustomerAll,
			},
			snap:         cakeCart(),
			wantSubtotal: vnd(110000),
			wantLines:    1,
		},
		{
			name: "category scope with no matching lines",
			coupon: &Coupon{
				ApplyTo: ApplyCategory, CategoryIDs: []int64{2},
				CustomerRestriction: CustomerAll,
			},
			snap:    cakeCart(),
			wantErr: ErrScopeMismatch,
		},
		{
			name: "product scope keeps only listed products",
			coupon: &Coupon{
				ApplyTo: ApplyProduct, ProductIDs: []string{"ca-phe-sua"},
				CustomerRestriction: CustomerAll,
			},
			snap:         cakeCart(),
			wantSubtotal: vnd(30000),
			wantLines:    1,
		},
		{
			name: "excluded product is removed from scope",
			coupon: &Coupon{
				ApplyTo: ApplyAll, ExcludeProductIDs: []string{"tiramisu-slice"},
				CustomerRestriction: CustomerAll,
			},
			snap:         cakeCart(),
			wantSubtotal: vnd(30000),
			wantLines:    1,
		},
		{
			name: "sale items excluded leaves empty scope",
			coupon: &Coupon{
				ApplyTo: ApplyCategory, CategoryIDs: []int64{1},
				ExcludeSaleItems:    true,
				CustomerRestriction: CustomerAll,
			},
			snap: cart.Snapshot{Lines: []cart.Line{
				{ProductID: "choco-cake", Quantity: 1, UnitPrice: vnd(280000), CategoryID: 1, OnSale: true},
			}},
			wantErr: ErrScopeMismatch,
		},
		{
			name: "minimum is checked against the scoped subtotal",
			coupon: &Coupon{
				ApplyTo: ApplyCategory, CategoryIDs: []int64{1},
				MinOrderAmount:      vnd(150000),
				CustomerRestriction: CustomerAll,
			},
			// Full cart is 140000 + drinks would not help anyway; the scoped
			// cake subtotal 110000 is what the minimum sees.
			snap:    cakeCart(),
			wantErr: ErrBelowMinimum,
		},
		{
			name: "below minimum order amount",
			coupon: &Coupon{
				ApplyTo: ApplyAll, MinOrderAmount: vnd(200000),
				CustomerRestriction: CustomerAll,
			},
			snap:    cakeCart(),
			wantErr: ErrBelowMinimum,
		},
		{
			name: "delivery-only coupon rejects pickup order",
			coupon: &Coupon{
				ApplyTo: ApplyAll, DeliveryMethod: DeliveryDelivery,
				CustomerRestriction: CustomerAll,
			},
			snap:    cakeCart(),
			in:      CheckInput{DeliveryMethod: DeliveryPickup},
			wantErr: ErrScopeMismatch,
		},
		{
			name: "delivery-only coupon accepts delivery order",
			coupon: &Coupon{
				ApplyTo: ApplyAll, DeliveryMethod: DeliveryDelivery,
				CustomerRestriction: CustomerAll,
			},
			snap:         cakeCart(),
			in:           CheckInput{DeliveryMethod: DeliveryDelivery},
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "advance hours not met",
			coupon: &Coupon{
				ApplyTo: ApplyAll, AdvanceHours: 24,
				CustomerRestriction: CustomerAll,
			},
			snap: cakeCart(),
			in: CheckInput{
				DeliveryMethod: DeliveryPickup,
				FulfillmentAt:  timePtr(fixedNow.Add(3 * time.Hour)),
			},
			wantErr: ErrOutOfWindow,
		},
		{
			name: "advance hours met",
			coupon: &Coupon{
				ApplyTo: ApplyAll, AdvanceHours: 24,
				CustomerRestriction: CustomerAll,
			},
			snap: cakeCart(),
			in: CheckInput{
				DeliveryMethod: DeliveryPickup,
				FulfillmentAt:  timePtr(fixedNow.Add(36 * time.Hour)),
			},
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "advance hours skipped without a fulfillment time",
			coupon: &Coupon{
				ApplyTo: ApplyAll, AdvanceHours: 24,
				CustomerRestriction: CustomerAll,
			},
			snap:         cakeCart(),
			in:           CheckInput{DeliveryMethod: DeliveryPickup},
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "non-stackable coupon with active ship discount",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerAll,
			},
			snap:    cakeCart(),
			in:      CheckInput{ShipDiscountActive: true},
			wantErr: ErrScopeMismatch,
		},
		{
			name: "stackable coupon with active ship discount",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerAll,
				CanStackWithShip: true,
			},
			snap:         cakeCart(),
			in:           CheckInput{ShipDiscountActive: true},
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "new-customer coupon for anonymous customer",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerNew,
			},
			snap:    cakeCart(),
			wantErr: ErrCustomerNotEligible,
		},
		{
			name: "new-customer coupon for customer with no orders",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerNew,
			},
			snap:         cakeCart(),
			id:           customer.Identity{Email: "an@example.com"},
			history:      &mockHistory{completed: 0},
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "new-customer coupon for returning customer",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerNew,
			},
			snap:    cakeCart(),
			id:      customer.Identity{UserID: 42},
			history: &mockHistory{completed: 3},
			wantErr: ErrCustomerNotEligible,
		},
		{
			name: "returning-customer coupon for new customer",
			coupon: &Coupon{
				ApplyTo: ApplyAll, CustomerRestriction: CustomerReturning,
			},
			snap:    cakeCart(),
			id:      customer.Identity{UserID: 42},
			history: &mockHistory{completed: 0},
			wantErr: ErrCustomerNotEligible,
		},
		{
			name: "specific-customer coupon matches email case-insensitively",
			coupon: &Coupon{
				ApplyTo:               ApplyAll,
				CustomerRestriction:   CustomerSpecific,
				AllowedCustomerEmails: []string{"VIP@Example.com"},
			},
			snap:         cakeCart(),
			id:           customer.Identity{Email: "vip@example.com"},
			wantSubtotal: vnd(140000),
			wantLines:    2,
		},
		{
			name: "specific-customer coupon rejects unlisted email",
			coupon: &Coupon{
				ApplyTo:               ApplyAll,
				CustomerRestriction:   CustomerSpecific,
				AllowedCustomerEmails: []string{"vip@example.com"},
			},
			snap:    cakeCart(),
			id:      customer.Identity{Email: "other@example.com"},
			wantErr: ErrCustomerNotEligible,
		},
		{
			name: "scope check runs before customer check",
			coupon: &Coupon{
				ApplyTo: ApplyCategory, CategoryIDs: []int64{99},
				CustomerRestriction: CustomerNew,
			},
			snap:    cakeCart(),
			wantErr: ErrScopeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := tt.history
			if history == nil {
				history = &mockHistory{}
			}
			e := NewEvaluator(history, time.UTC)

			got, err := e.Check(context.Background(), tt.coupon, tt.snap, tt.id, fixedNow, tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got.Lines, tt.wantLines)
			assert.True(t, tt.wantSubtotal.Equal(got.Subtotal),
				"subtotal: want %s, got %s", tt.wantSubtotal, got.Subtotal)
		})
	}
}

func TestEvaluator_Check_HistoryError(t *testing.T) {
	e := NewEvaluator(&mockHistory{err: errors.New("db down")}, time.UTC)
	c := &Coupon{ApplyTo: ApplyAll, CustomerRestriction: CustomerNew}

	_, err := e.Check(context.Background(), c, cakeCart(),
		customer.Identity{UserID: 7}, time.Now(), CheckInput{})
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func timePtr(t time.Time) *time.Time { return &t }
