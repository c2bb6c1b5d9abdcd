package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
	"github.com/sweetoven/coupon-engine/internal/domain/customer"
	"github.com/sweetoven/coupon-engine/internal/domain/order"
)

type placeOrderRequest struct {
	Items      []orderItemRequest `json:"items"`
	CouponCode string             `json:"coupon_code,omitempty"`
	UserID     int64              `json:"user_id,omitempty"`
	Email      string             `json:"email,omitempty"`
	Phone      string             `json:"phone,omitempty"`

	DeliveryMethod  string `json:"delivery_method,omitempty"`
	FulfillmentTime string `json:"fulfillment_time,omitempty"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type placeOrderResponse struct {
	ID         string  `json:"id"`
	Subtotal   float64 `json:"subtotal"`
	Discount   float64 `json:"discount"`
	Total      float64 `json:"total"`
	FreeShip   bool    `json:"free_ship"`
	CouponCode string  `json:"coupon_code,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// PlaceOrder handles POST /orders. A coupon code, when present, is
// validated against the final cart and redeemed in the same transaction as
// the order insert; 409 means a concurrent checkout consumed the coupon
// first and the client should re-validate before retrying.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.Item{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	domainReq := order.PlaceOrderRequest{
		Items:          items,
		CouponCode:     req.CouponCode,
		Customer:       customer.Identity{UserID: req.UserID, Email: req.Email, Phone: req.Phone},
		DeliveryMethod: requestedDelivery(req.DeliveryMethod),
	}
	if req.FulfillmentTime != "" {
		t, err := time.Parse(time.RFC3339, req.FulfillmentTime)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "fulfillment_time must be RFC 3339")
			return
		}
		domainReq.FulfillmentAt = &t
	}

	result, err := h.orders.PlaceOrder(r.Context(), domainReq)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	o := result.Order
	writeJSON(w, r, http.StatusCreated, placeOrderResponse{
		ID:         o.ID,
		Subtotal:   o.Subtotal.InexactFloat64(),
		Discount:   o.Discount.InexactFloat64(),
		Total:      o.Total.InexactFloat64(),
		FreeShip:   o.FreeShip,
		CouponCode: o.CouponCode,
		Message:    result.CouponMessage,
	})
}

func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rejected *order.CouponRejectedError
		badQty   *order.InvalidQuantityError
		notFound *order.ProductNotFoundError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &badQty):
		writeError(w, r, http.StatusUnprocessableEntity, badQty.Error())
	case errors.As(err, &notFound):
		writeError(w, r, http.StatusUnprocessableEntity, notFound.Error())
	case errors.As(err, &rejected):
		writeError(w, r, http.StatusUnprocessableEntity, rejected.Result.Message)
	case errors.Is(err, coupon.ErrConflict):
		writeError(w, r, http.StatusConflict,
			"the coupon was claimed by another order, please re-validate and retry")
	default:
		zctx.From(r.Context()).Error("place order", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
