package store

import (
	"context"
	"errors"
	"time"

	"vastra/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrCouponConflict means a redemption lost the race for a coupon's
	// remaining uses. The order placement that carried it is rolled back.
	ErrCouponConflict = errors.New("coupon usage conflict")
	ErrInvalidOrder   = errors.New("invalid order")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)

	CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	SetCouponActive(ctx context.Context, couponID string, active bool) (*domain.Coupon, error)
	CountUserRedemptions(ctx context.Context, couponID string, userID string) (int, error)
	// CommitRedemption consumes one use of a coupon for a user, atomically.
	// It fails with ErrCouponConflict when the coupon's global or per-user
	// limit has no uses left, leaving both counters untouched.
	CommitRedemption(ctx context.Context, couponID string, userID string, maxUsesPerUser int) error

	// CreateOrder persists the order and, when order.CouponID is set, commits
	// the coupon redemption in the same transaction. A redemption conflict
	// aborts the whole placement with ErrCouponConflict.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error)
	// AdvanceOrderStatus applies a fulfillment transition under the order's
	// row lock, appends a timeline event, and settles COD payment when the
	// target is delivered. Illegal moves fail with settlement.TransitionError.
	AdvanceOrderStatus(ctx context.Context, orderID string, to string, actor string, note string, at time.Time) (*domain.Order, error)
	// ResolvePayment finishes manual UPI verification: approve marks the
	// payment paid; reject marks it failed and cancels the order in the same
	// update.
	ResolvePayment(ctx context.Context, orderID string, approve bool, actor string, note string, at time.Time) (*domain.Order, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
