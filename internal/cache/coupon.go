// Package cache provides a Redis read-through cache for coupon lookups.
// Coupon definitions change rarely and are read on every validation
// request, so a short TTL takes the hot codes off the database. Back-office
// edits become visible within one TTL; there is no explicit invalidation.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponCache)(nil)

// CouponCache decorates a coupon.Repository with a Redis cache keyed by
// normalized code. Only hits are cached; a missing code always goes to the
// source so newly created coupons become usable immediately.
type CouponCache struct {
	source coupon.Repository
	client *redis.Client
	ttl    time.Duration
}

// NewCouponCache creates a CouponCache in front of source.
func NewCouponCache(client *redis.Client, source coupon.Repository, ttl time.Duration) *CouponCache {
	return &CouponCache{source: source, client: client, ttl: ttl}
}

func cacheKey(code string) string {
	return "coupon:" + coupon.NormalizeCode(code)
}

// FindByCode returns the cached definition when present, falling back to
// the source repository. Cache failures degrade to a plain lookup; Redis
// being down must not break validation.
func (c *CouponCache) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	key := cacheKey(code)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached coupon.Coupon
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		// Corrupt entry: drop it and fall through to the source.
		c.client.Del(ctx, key)
	}

	found, err := c.source.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "coupon source lookup")
	}

	if raw, err := json.Marshal(found); err == nil {
		c.client.Set(ctx, key, raw, c.ttl)
	}
	return found, nil
}
