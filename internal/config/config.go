package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`

	// Checkout pricing knobs: GST applied to the discounted subtotal, a flat
	// shipping fee waived above the free-shipping threshold.
	TaxRatePercent        float64 `env:"TAX_RATE_PERCENT" envDefault:"5"`
	ShippingFlatPaise     int64   `env:"SHIPPING_FLAT_PAISE" envDefault:"9900"`
	FreeShippingMinPaise  int64   `env:"FREE_SHIPPING_MIN_PAISE" envDefault:"199900"`
	CouponCacheTTLSeconds int     `env:"COUPON_CACHE_TTL_SECONDS" envDefault:"30"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.CouponCacheTTLSeconds < 1 {
		cfg.CouponCacheTTLSeconds = 30
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
