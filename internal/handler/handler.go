// Package handler exposes the coupon engine over HTTP: coupon validation
// for the storefront and order placement with transactional redemption.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sweetoven/coupon-engine/internal/domain/catalog"
	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
	"github.com/sweetoven/coupon-engine/internal/domain/order"
)

// Handler holds the dependencies for the HTTP endpoints.
type Handler struct {
	products catalog.Repository
	coupons  *coupon.Service
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products catalog.Repository, coupons *coupon.Service, orders *order.Service) *Handler {
	return &Handler{
		products: products,
		coupons:  coupons,
		orders:   orders,
	}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", h.ValidateCoupon)
	})
	r.Post("/orders", h.PlaceOrder)
	return r
}

// errorResponse is the JSON body for non-2xx responses.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Code: status, Message: msg})
}
