package cache

import (
	"context"
	"time"

	"vastra/backend/internal/domain"
)

// CouponCache is a read-through cache in front of coupon lookups by code.
// Entries are TTL-bound and invalidated on admin coupon mutation; the usage
// counters a cached coupon carries are advisory only, the store re-checks
// them at commit time.
type CouponCache interface {
	Get(ctx context.Context, code string) (*domain.Coupon, bool, error)
	Set(ctx context.Context, code string, coupon *domain.Coupon, ttl time.Duration) error
	Invalidate(ctx context.Context, code string) error
}

type NoopCouponCache struct{}

func (NoopCouponCache) Get(_ context.Context, _ string) (*domain.Coupon, bool, error) {
	return nil, false, nil
}

func (NoopCouponCache) Set(_ context.Context, _ string, _ *domain.Coupon, _ time.Duration) error {
	return nil
}

func (NoopCouponCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
