// Package catalog exposes the product facts the coupon engine needs:
// authoritative price, category, and sale status per product.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog entry with the fields relevant to discounting.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	CategoryID int64
	OnSale     bool
	ImageURL   string
}

// Repository provides read access to the product catalog.
type Repository interface {
	// GetByIDs returns the products matching any of the given IDs. Missing
	// IDs are simply absent from the result; callers detect them by map-back.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
