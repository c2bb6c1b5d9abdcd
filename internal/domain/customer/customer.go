// Package customer defines customer identity resolution for per-customer
// coupon restrictions and usage limits.
package customer

import (
	"context"
	"strconv"
	"strings"
)

// Identity carries whatever the storefront knows about the customer at
// validation time. Any subset of the fields may be present.
type Identity struct {
	UserID int64
	Email  string
	Phone  string
}

// IsZero reports whether no identifying field is present.
func (i Identity) IsZero() bool {
	return i.UserID == 0 && i.Email == "" && i.Phone == ""
}

// Key resolves the identity to the customer key used for restriction and
// usage checks. Precedence: user ID, then email, then phone. Emails are
// lowercased so the same customer resolves to the same key regardless of
// input casing. Returns an empty string for a zero identity.
func (i Identity) Key() string {
	switch {
	case i.UserID != 0:
		return "user:" + strconv.FormatInt(i.UserID, 10)
	case i.Email != "":
		return "email:" + strings.ToLower(strings.TrimSpace(i.Email))
	case i.Phone != "":
		return "phone:" + strings.TrimSpace(i.Phone)
	}
	return ""
}

// History answers order-history questions about a customer, used by the
// new/returning coupon restrictions. A customer with zero completed orders
// is "new"; cancelled orders do not count.
type History interface {
	CompletedOrders(ctx context.Context, key string) (int, error)
}
