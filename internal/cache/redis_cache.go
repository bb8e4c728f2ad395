package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vastra/backend/internal/domain"
)

type RedisCouponCache struct {
	client *redis.Client
}

func NewRedisCouponCache(addr string, password string, db int) *RedisCouponCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCouponCache{client: client}
}

func (c *RedisCouponCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCouponCache) Close() error {
	return c.client.Close()
}

func (c *RedisCouponCache) Get(ctx context.Context, code string) (*domain.Coupon, bool, error) {
	val, err := c.client.Get(ctx, couponKey(code)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var coupon domain.Coupon
	if err := json.Unmarshal([]byte(val), &coupon); err != nil {
		return nil, false, err
	}
	return &coupon, true, nil
}

func (c *RedisCouponCache) Set(ctx context.Context, code string, coupon *domain.Coupon, ttl time.Duration) error {
	if coupon == nil {
		return nil
	}
	payload, err := json.Marshal(coupon)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, couponKey(code), payload, ttl).Err()
}

func (c *RedisCouponCache) Invalidate(ctx context.Context, code string) error {
	return c.client.Del(ctx, couponKey(code)).Err()
}

func couponKey(code string) string {
	return "coupon:" + code
}
