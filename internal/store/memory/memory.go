package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"vastra/backend/internal/domain"
	"vastra/backend/internal/settlement"
	"vastra/backend/internal/store"
	"vastra/backend/internal/xid"
)

type Store struct {
	mu                sync.RWMutex
	products          map[string]domain.Product
	priceHistoryBySKU map[string][]domain.ProductPriceHistory
	couponsByID       map[string]domain.Coupon
	couponIDByCode    map[string]string
	couponUsage       map[string]map[string]int
	redemptions       []domain.CouponRedemption
	ordersByID        map[string]*domain.Order
	auditLogs         []domain.AuditLog
	usersByUsername   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "customer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		log.Warn().Msg("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"customer", customerPwd, "customer"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{SKU: "VST-KURTA-01", Name: "Chikankari Kurta", Category: "kurtas", PricePaise: 159900, Sizes: []string{"S", "M", "L", "XL"}, Colors: []string{"white", "sage"}, Active: true},
		{SKU: "VST-KURTA-02", Name: "Block Print Kurta", Category: "kurtas", PricePaise: 129900, Sizes: []string{"S", "M", "L", "XL"}, Colors: []string{"indigo", "rust"}, Active: true},
		{SKU: "VST-TEE-01", Name: "Organic Cotton Tee", Category: "tees", PricePaise: 69900, Sizes: []string{"S", "M", "L", "XL", "XXL"}, Colors: []string{"black", "ecru"}, Active: true},
		{SKU: "VST-TEE-02", Name: "Madras Check Tee", Category: "tees", PricePaise: 79900, Sizes: []string{"S", "M", "L"}, Colors: []string{"multi"}, Active: true},
		{SKU: "VST-SAREE-01", Name: "Linen Handloom Saree", Category: "sarees", PricePaise: 349900, Colors: []string{"mustard", "teal"}, Active: true},
		{SKU: "VST-DUPATTA-01", Name: "Bandhani Dupatta", Category: "dupattas", PricePaise: 89900, Colors: []string{"red", "yellow"}, Active: true},
		{SKU: "VST-JEANS-01", Name: "Selvedge Denim", Category: "denim", PricePaise: 299900, Sizes: []string{"30", "32", "34", "36"}, Colors: []string{"raw"}, Active: true},
		{SKU: "VST-SHIRT-01", Name: "Khadi Overshirt", Category: "shirts", PricePaise: 189900, Sizes: []string{"S", "M", "L", "XL"}, Colors: []string{"natural", "olive"}, Active: true},
	}

	now := time.Now().UTC()
	coupons := []domain.Coupon{
		{
			ID:               xid.New("cpn"),
			Code:             "WELCOME10",
			Type:             domain.CouponTypePercent,
			Percent:          10,
			MaxDiscountPaise: 30000,
			MinOrderPaise:    99900,
			MaxUsesPerUser:   1,
			Active:           true,
			ValidFrom:        now.Add(-24 * time.Hour),
			ValidUntil:       now.Add(365 * 24 * time.Hour),
			CreatedAt:        now,
		},
		{
			ID:            xid.New("cpn"),
			Code:          "FESTIVE500",
			Type:          domain.CouponTypeFixed,
			FlatPaise:     50000,
			MinOrderPaise: 249900,
			MaxUses:       500,
			Active:        true,
			ValidFrom:     now.Add(-24 * time.Hour),
			ValidUntil:    now.Add(90 * 24 * time.Hour),
			CreatedAt:     now,
		},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.SKU] = p
	}
	couponMap := make(map[string]domain.Coupon, len(coupons))
	codeIndex := make(map[string]string, len(coupons))
	for _, c := range coupons {
		couponMap[c.ID] = c
		codeIndex[c.Code] = c.ID
	}

	return &Store{
		products:          productMap,
		priceHistoryBySKU: map[string][]domain.ProductPriceHistory{},
		couponsByID:       couponMap,
		couponIDByCode:    codeIndex,
		couponUsage:       map[string]map[string]int{},
		redemptions:       make([]domain.CouponRedemption, 0, 64),
		ordersByID:        map[string]*domain.Order{},
		auditLogs:         make([]domain.AuditLog, 0, 128),
		usersByUsername:   seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" {
		return nil, store.ErrInvalidOrder
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, store.ErrInvalidOrder
	}

	s.products[product.SKU] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(product)
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.SKU]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.SKU] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("price")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistoryBySKU[entry.SKU] = append(s.priceHistoryBySKU[entry.SKU], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistoryBySKU[sku]
	out := make([]domain.ProductPriceHistory, len(history))
	copy(out, history)

	slices.SortFunc(out, func(a, b domain.ProductPriceHistory) int {
		return b.ChangedAt.Compare(a.ChangedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if product, exists := s.products[sku]; exists && product.Active {
			result[sku] = cloneProduct(product)
		}
	}
	return result, nil
}

func (s *Store) CreateCoupon(_ context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if coupon.Code == "" {
		return nil, store.ErrInvalidOrder
	}
	if _, exists := s.couponIDByCode[coupon.Code]; exists {
		return nil, store.ErrInvalidOrder
	}
	if coupon.ID == "" {
		coupon.ID = xid.New("cpn")
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}

	s.couponsByID[coupon.ID] = coupon
	s.couponIDByCode[coupon.Code] = coupon.ID
	created := coupon
	return &created, nil
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.couponIDByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	coupon := s.couponsByID[id]
	found := coupon
	return &found, nil
}

func (s *Store) ListCoupons(_ context.Context) ([]domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coupons := make([]domain.Coupon, 0, len(s.couponsByID))
	for _, coupon := range s.couponsByID {
		coupons = append(coupons, coupon)
	}
	slices.SortFunc(coupons, func(a, b domain.Coupon) int {
		return cmpString(a.Code, b.Code)
	})
	return coupons, nil
}

func (s *Store) SetCouponActive(_ context.Context, couponID string, active bool) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon, exists := s.couponsByID[couponID]
	if !exists {
		return nil, store.ErrNotFound
	}
	coupon.Active = active
	s.couponsByID[couponID] = coupon
	updated := coupon
	return &updated, nil
}

func (s *Store) CountUserRedemptions(_ context.Context, couponID string, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.couponUsage[couponID][userID], nil
}

func (s *Store) CommitRedemption(_ context.Context, couponID string, userID string, maxUsesPerUser int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitRedemptionLocked(couponID, userID, maxUsesPerUser)
}

// commitRedemptionLocked applies the same conditional increments the SQL
// implementation runs: the global counter advances only while below
// max_uses, the per-user counter only while below max_uses_per_user. Callers
// must hold s.mu.
func (s *Store) commitRedemptionLocked(couponID string, userID string, maxUsesPerUser int) error {
	coupon, exists := s.couponsByID[couponID]
	if !exists {
		return store.ErrNotFound
	}
	if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
		return store.ErrCouponConflict
	}
	if maxUsesPerUser > 0 && s.couponUsage[couponID][userID] >= maxUsesPerUser {
		return store.ErrCouponConflict
	}

	coupon.UsedCount++
	s.couponsByID[couponID] = coupon
	if s.couponUsage[couponID] == nil {
		s.couponUsage[couponID] = map[string]int{}
	}
	s.couponUsage[couponID][userID]++
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" || order.UserID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidOrder
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrInvalidOrder
	}

	if order.CouponID != "" {
		coupon, exists := s.couponsByID[order.CouponID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if err := s.commitRedemptionLocked(order.CouponID, order.UserID, coupon.MaxUsesPerUser); err != nil {
			return nil, err
		}
		s.redemptions = append(s.redemptions, domain.CouponRedemption{
			ID:            xid.New("rdm"),
			CouponID:      order.CouponID,
			UserID:        order.UserID,
			OrderID:       order.ID,
			DiscountPaise: order.DiscountPaise,
			RedeemedAt:    order.CreatedAt,
		})
	}

	if len(order.Timeline) == 0 {
		order.Timeline = []domain.OrderEvent{{
			To:    order.Status,
			Actor: order.UserID,
			At:    order.CreatedAt,
		}}
	}
	order.UpdatedAt = order.CreatedAt

	s.ordersByID[order.ID] = cloneOrder(&order)
	return cloneOrder(&order), nil
}

func (s *Store) GetOrderByID(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, 16)
	for _, order := range s.ordersByID {
		if order.UserID == userID {
			orders = append(orders, *cloneOrder(order))
		}
	}
	sortOrdersNewestFirst(orders)
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) ListOrders(_ context.Context, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, *cloneOrder(order))
	}
	sortOrdersNewestFirst(orders)
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) AdvanceOrderStatus(_ context.Context, orderID string, to string, actor string, note string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if err := settlement.ValidateOrderTransition(order.Status, to); err != nil {
		return nil, err
	}

	from := order.Status
	order.Status = to
	if to == domain.OrderStatusDelivered && settlement.SettlesCODOnDelivery(order.PaymentMethod, order.PaymentStatus) {
		order.PaymentStatus = domain.PaymentPaid
	}
	order.Timeline = append(order.Timeline, domain.OrderEvent{
		From:  from,
		To:    to,
		Actor: actor,
		Note:  note,
		At:    at,
	})
	order.UpdatedAt = at

	return cloneOrder(order), nil
}

func (s *Store) ResolvePayment(_ context.Context, orderID string, approve bool, actor string, note string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}

	target := domain.PaymentPaid
	if !approve {
		target = domain.PaymentFailed
	}
	// Manual resolution is the UPI verification path only. COD settles on
	// delivery through AdvanceOrderStatus.
	if order.PaymentMethod != domain.PaymentMethodUPI {
		return nil, &settlement.TransitionError{Field: "payment_status", From: order.PaymentStatus, To: target}
	}
	if err := settlement.ValidatePaymentTransition(order.PaymentMethod, order.PaymentStatus, target); err != nil {
		return nil, err
	}
	if !approve {
		// Rejection cancels the order in the same step.
		if err := settlement.ValidateOrderTransition(order.Status, domain.OrderStatusCancelled); err != nil {
			return nil, err
		}
	}

	order.PaymentStatus = target
	if !approve {
		from := order.Status
		order.Status = domain.OrderStatusCancelled
		order.Timeline = append(order.Timeline, domain.OrderEvent{
			From:  from,
			To:    domain.OrderStatusCancelled,
			Actor: actor,
			Note:  note,
			At:    at,
		})
	}
	order.UpdatedAt = at

	return cloneOrder(order), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidOrder
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidOrder
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func sortOrdersNewestFirst(orders []domain.Order) {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.Sizes = append([]string(nil), src.Sizes...)
	dst.Colors = append([]string(nil), src.Colors...)
	return dst
}

func cloneOrder(src *domain.Order) *domain.Order {
	dst := *src
	dst.Items = append([]domain.OrderLine(nil), src.Items...)
	dst.Timeline = append([]domain.OrderEvent(nil), src.Timeline...)
	return &dst
}
