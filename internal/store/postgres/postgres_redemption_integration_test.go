package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"vastra/backend/internal/domain"
	"vastra/backend/internal/store"
)

func TestCommitRedemptionSingleUseCoupon(t *testing.T) {
	databaseURL := os.Getenv("VASTRA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set VASTRA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	code := fmt.Sprintf("IT-ONCE-%d", stamp)
	now := time.Now().UTC()

	coupon, err := s.CreateCoupon(ctx, domain.Coupon{
		Code:       code,
		Type:       domain.CouponTypeFixed,
		FlatPaise:  10000,
		MaxUses:    1,
		Active:     true,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM coupon_usages WHERE coupon_id = $1`, coupon.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, coupon.ID)
	})

	// Two concurrent commits against one remaining use: exactly one may win.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot] = s.CommitRedemption(ctx, coupon.ID, fmt.Sprintf("user-%d", slot), 0)
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, res := range results {
		switch {
		case res == nil:
			successes++
		case errors.Is(res, store.ErrCouponConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", res)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected 1 success and 1 conflict, got %d/%d", successes, conflicts)
	}

	var usedCount int64
	if err := s.db.QueryRowContext(ctx, `SELECT used_count FROM coupons WHERE id = $1`, coupon.ID).Scan(&usedCount); err != nil {
		t.Fatalf("query used_count: %v", err)
	}
	if usedCount != 1 {
		t.Fatalf("expected used_count 1, got %d", usedCount)
	}
}
