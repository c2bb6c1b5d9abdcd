//go:build integration

package integration

import (
	"net/http"
	"testing"
)

// Seeded coupons: BANH20 (20% off from 200k, capped at 50k), NEW30K (30k off
// first order from 300k), FREESHIP (free delivery from 200k), CAKE15 (15% off
// full-price cakes), TET10K (10k off, 3 redemptions in total).

func TestValidate_PercentWithCap(t *testing.T) {
	req := validateRequest{
		Code:      "BANH20",
		CartItems: []cartItem{{ProductID: "matcha-cake", Qty: 1}}, // 320,000
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeJSON[validateResponse](t, resp)
	if !body.Valid {
		t.Fatalf("expected valid, got invalid: %s", body.Message)
	}
	// 20% of 320,000 is 64,000, capped at 50,000.
	if body.Coupon.DiscountAmount != 50000 {
		t.Fatalf("expected discount 50000, got %v", body.Coupon.DiscountAmount)
	}
}

func TestValidate_BelowMinimumIs200Invalid(t *testing.T) {
	req := validateRequest{
		Code:      "FREESHIP",
		CartItems: []cartItem{{ProductID: "banh-mi-thit", Qty: 2}}, // 50,000 < 200,000
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeJSON[validateResponse](t, resp)
	if body.Valid {
		t.Fatal("expected invalid")
	}
	if body.Coupon != nil {
		t.Fatal("invalid result must not carry a coupon payload")
	}
	if body.Message == "" {
		t.Fatal("expected a customer-facing message")
	}
}

func TestValidate_FreeShip(t *testing.T) {
	req := validateRequest{
		Code:           "FREESHIP",
		CartItems:      []cartItem{{ProductID: "matcha-cake", Qty: 1}},
		DeliveryMethod: "delivery",
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	body := decodeJSON[validateResponse](t, resp)
	if !body.Valid {
		t.Fatalf("expected valid, got invalid: %s", body.Message)
	}
	if !body.Coupon.FreeShip {
		t.Fatal("expected free_ship=true")
	}
	if body.Coupon.DiscountAmount != 0 {
		t.Fatalf("free shipping must not discount items, got %v", body.Coupon.DiscountAmount)
	}
}

func TestValidate_SaleItemsExcludedFromCategoryScope(t *testing.T) {
	// choco-cake is on sale; CAKE15 excludes sale items, so a cart with only
	// the sale cake has nothing in scope.
	req := validateRequest{
		Code:      "CAKE15",
		CartItems: []cartItem{{ProductID: "choco-cake", Qty: 1}},
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	body := decodeJSON[validateResponse](t, resp)
	if body.Valid {
		t.Fatal("expected invalid for an all-sale cart")
	}
}

func TestValidate_CategoryScopedSubtotal(t *testing.T) {
	// CAKE15 applies to cakes only: the bánh mì line must not be discounted.
	req := validateRequest{
		Code: "CAKE15",
		CartItems: []cartItem{
			{ProductID: "tiramisu-slice", Qty: 2}, // 110,000 in scope
			{ProductID: "banh-mi-thit", Qty: 4},   // out of scope
		},
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	body := decodeJSON[validateResponse](t, resp)
	if !body.Valid {
		t.Fatalf("expected valid, got invalid: %s", body.Message)
	}
	// 15% of 110,000.
	if body.Coupon.DiscountAmount != 16500 {
		t.Fatalf("expected discount 16500, got %v", body.Coupon.DiscountAmount)
	}
}

func TestValidate_NewCustomerCoupon(t *testing.T) {
	req := validateRequest{
		Code:      "NEW30K",
		CartItems: []cartItem{{ProductID: "matcha-cake", Qty: 1}},
		Email:     "first-timer@example.com",
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	body := decodeJSON[validateResponse](t, resp)
	if !body.Valid {
		t.Fatalf("expected valid for a new customer, got: %s", body.Message)
	}
	if body.Coupon.DiscountAmount != 30000 {
		t.Fatalf("expected discount 30000, got %v", body.Coupon.DiscountAmount)
	}
}

func TestValidate_NewCustomerCouponAnonymous(t *testing.T) {
	// No identity at all: a customer-restricted coupon cannot match.
	req := validateRequest{
		Code:      "NEW30K",
		CartItems: []cartItem{{ProductID: "matcha-cake", Qty: 1}},
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	body := decodeJSON[validateResponse](t, resp)
	if body.Valid {
		t.Fatal("expected invalid for anonymous customer")
	}
}

func TestValidate_UnknownCode(t *testing.T) {
	req := validateRequest{
		Code:      "DOESNOTEXIST",
		CartItems: []cartItem{{ProductID: "banh-mi-thit", Qty: 1}},
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeJSON[validateResponse](t, resp)
	if body.Valid {
		t.Fatal("expected invalid")
	}
}

func TestValidate_CodeIsCaseInsensitive(t *testing.T) {
	req := validateRequest{
		Code:      "  banh20 ",
		CartItems: []cartItem{{ProductID: "matcha-cake", Qty: 1}},
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	body := decodeJSON[validateResponse](t, resp)
	if !body.Valid {
		t.Fatalf("expected valid, got invalid: %s", body.Message)
	}
	if body.Coupon.Code != "BANH20" {
		t.Fatalf("expected canonical code BANH20, got %q", body.Coupon.Code)
	}
}

func TestValidate_MissingCode(t *testing.T) {
	req := validateRequest{
		CartItems: []cartItem{{ProductID: "banh-mi-thit", Qty: 1}},
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestValidate_UnknownProduct(t *testing.T) {
	req := validateRequest{
		Code:      "BANH20",
		CartItems: []cartItem{{ProductID: "no-such-bun", Qty: 1}},
	}
	resp := doPost(t, "/api/coupons/validate", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}
