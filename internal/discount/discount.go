// Package discount evaluates a coupon against an order total. Evaluation is
// pure: it never mutates the coupon and never touches storage, so the same
// inputs always produce the same result. Usage counters are committed
// separately by the store at order placement.
package discount

import (
	"math"
	"time"

	"vastra/backend/internal/domain"
)

// Reason identifies why a coupon was rejected. The values are stable wire
// codes and are rendered verbatim in API responses.
type Reason string

const (
	ReasonNotFound            Reason = "NOT_FOUND"
	ReasonInactive            Reason = "INACTIVE"
	ReasonNotYetValid         Reason = "NOT_YET_VALID"
	ReasonExpired             Reason = "EXPIRED"
	ReasonUsageLimitReached   Reason = "USAGE_LIMIT_REACHED"
	ReasonPerUserLimitReached Reason = "PER_USER_LIMIT_REACHED"
	ReasonBelowMinimumOrder   Reason = "BELOW_MINIMUM_ORDER"
)

// RejectionError wraps a Reason so callers can surface it through error
// returns. Error() is the bare reason code.
type RejectionError struct {
	Reason Reason
}

func (e *RejectionError) Error() string {
	return string(e.Reason)
}

type Result struct {
	Valid         bool
	DiscountPaise int64
	Reason        Reason
}

// Evaluate checks coupon against an order subtotal and returns the discount
// it would grant. Rejection checks run in a fixed order so a coupon that is
// both expired and over its usage limit always reports the same reason:
// existence/active, then validity window, then global usage, then per-user
// usage, then minimum order value.
func Evaluate(coupon *domain.Coupon, orderTotalPaise int64, userRedemptionCount int, now time.Time) Result {
	if coupon == nil {
		return Result{Reason: ReasonNotFound}
	}
	if !coupon.Active {
		return Result{Reason: ReasonInactive}
	}
	if !coupon.ValidFrom.IsZero() && now.Before(coupon.ValidFrom) {
		return Result{Reason: ReasonNotYetValid}
	}
	if !coupon.ValidUntil.IsZero() && now.After(coupon.ValidUntil) {
		return Result{Reason: ReasonExpired}
	}
	if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
		return Result{Reason: ReasonUsageLimitReached}
	}
	if coupon.MaxUsesPerUser > 0 && userRedemptionCount >= coupon.MaxUsesPerUser {
		return Result{Reason: ReasonPerUserLimitReached}
	}
	if orderTotalPaise < coupon.MinOrderPaise {
		return Result{Reason: ReasonBelowMinimumOrder}
	}

	return Result{Valid: true, DiscountPaise: Amount(coupon, orderTotalPaise)}
}

// Amount computes the discount a valid coupon grants on the given order
// total. Fixed coupons never exceed the order total; percentage coupons are
// rounded to whole paise and clamped to MaxDiscountPaise when one is set.
func Amount(coupon *domain.Coupon, orderTotalPaise int64) int64 {
	if orderTotalPaise < 1 {
		return 0
	}

	var discount int64
	switch coupon.Type {
	case domain.CouponTypeFixed:
		discount = coupon.FlatPaise
	case domain.CouponTypePercent:
		discount = int64(math.Round(float64(orderTotalPaise) * coupon.Percent / 100))
		if coupon.MaxDiscountPaise > 0 && discount > coupon.MaxDiscountPaise {
			discount = coupon.MaxDiscountPaise
		}
	}

	if discount > orderTotalPaise {
		discount = orderTotalPaise
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
