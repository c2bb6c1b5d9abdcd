package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sweetoven/coupon-engine/internal/domain/cart"
	"github.com/sweetoven/coupon-engine/internal/domain/catalog"
	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
	"github.com/sweetoven/coupon-engine/internal/domain/customer"
)

// validateRequest is the storefront's coupon validation payload. Subtotal
// and line prices are advisory; the engine prices the cart from the catalog.
type validateRequest struct {
	Code      string            `json:"code"`
	Subtotal  float64           `json:"subtotal"`
	CartItems []cartItemRequest `json:"cart_items"`
	UserID    int64             `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	Phone     string            `json:"phone,omitempty"`

	DeliveryMethod     string `json:"delivery_method,omitempty"`
	FulfillmentTime    string `json:"fulfillment_time,omitempty"`
	ShipDiscountActive bool   `json:"ship_discount_active,omitempty"`
}

type cartItemRequest struct {
	ProductID string  `json:"product_id"`
	Qty       int     `json:"qty"`
	Price     float64 `json:"price"`
}

type validateResponse struct {
	Valid   bool             `json:"valid"`
	Coupon  *appliedResponse `json:"coupon,omitempty"`
	Message string           `json:"message"`
}

type appliedResponse struct {
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discount_amount"`
	FreeShip       bool    `json:"free_ship"`
	Message        string  `json:"message"`
}

// ValidateCoupon handles POST /coupons/validate. An inapplicable code is a
// 200 response with valid=false; non-2xx is reserved for malformed requests
// and infrastructure failures, so the storefront's error handling stays
// uniform.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code required")
		return
	}
	if len(req.CartItems) == 0 {
		writeError(w, r, http.StatusBadRequest, "cart_items required")
		return
	}
	for _, item := range req.CartItems {
		if item.Qty <= 0 {
			writeError(w, r, http.StatusUnprocessableEntity,
				fmt.Sprintf("quantity must be greater than 0 for product %s", item.ProductID))
			return
		}
	}

	in := coupon.CheckInput{
		DeliveryMethod:     requestedDelivery(req.DeliveryMethod),
		ShipDiscountActive: req.ShipDiscountActive,
	}
	if req.FulfillmentTime != "" {
		t, err := time.Parse(time.RFC3339, req.FulfillmentTime)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "fulfillment_time must be RFC 3339")
			return
		}
		in.FulfillmentAt = &t
	}

	snap, missing, err := h.buildSnapshot(r, req.CartItems)
	if err != nil {
		zctx.From(r.Context()).Error("build cart snapshot", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if missing != "" {
		writeError(w, r, http.StatusUnprocessableEntity,
			fmt.Sprintf("product %s not found", missing))
		return
	}

	id := customer.Identity{UserID: req.UserID, Email: req.Email, Phone: req.Phone}

	res, err := h.coupons.Validate(r.Context(), req.Code, snap, id, in)
	if err != nil {
		zctx.From(r.Context()).Error("validate coupon", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := validateResponse{Valid: res.Valid, Message: res.Message}
	if res.Valid {
		resp.Coupon = &appliedResponse{
			Code:           res.Coupon.Code,
			DiscountAmount: res.DiscountAmount.InexactFloat64(),
			FreeShip:       res.FreeShip,
			Message:        res.Message,
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// buildSnapshot resolves catalog facts for the requested items and returns
// the priced snapshot. The second return value is the first unknown product
// ID, or empty when all items resolved.
func (h *Handler) buildSnapshot(r *http.Request, items []cartItemRequest) (cart.Snapshot, string, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		return cart.Snapshot{}, "", err
	}
	byID := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	snap := cart.Snapshot{Lines: make([]cart.Line, len(items))}
	for i, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return cart.Snapshot{}, item.ProductID, nil
		}
		snap.Lines[i] = cart.Line{
			ProductID:  p.ID,
			Quantity:   item.Qty,
			UnitPrice:  p.Price,
			CategoryID: p.CategoryID,
			OnSale:     p.OnSale,
		}
	}
	return snap, "", nil
}

// requestedDelivery maps the request's delivery method, defaulting to
// pickup when the storefront does not send one.
func requestedDelivery(s string) coupon.DeliveryMethod {
	switch coupon.DeliveryMethod(s) {
	case coupon.DeliveryDelivery:
		return coupon.DeliveryDelivery
	default:
		return coupon.DeliveryPickup
	}
}
