package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"vastra/backend/internal/cache"
	"vastra/backend/internal/discount"
	"vastra/backend/internal/domain"
	"vastra/backend/internal/settlement"
	"vastra/backend/internal/store"
	"vastra/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Pricing holds the checkout knobs the server recomputes totals with.
// Client-supplied monetary fields are never trusted.
type Pricing struct {
	TaxRatePercent       float64
	ShippingFlatPaise    int64
	FreeShippingMinPaise int64
	CouponCacheTTL       time.Duration
}

type Service struct {
	repo    store.Repository
	coupons cache.CouponCache
	pricing Pricing
}

func New(repo store.Repository, coupons cache.CouponCache, pricing Pricing) *Service {
	if coupons == nil {
		coupons = cache.NoopCouponCache{}
	}
	if pricing.CouponCacheTTL <= 0 {
		pricing.CouponCacheTTL = 30 * time.Second
	}

	return &Service{
		repo:    repo,
		coupons: coupons,
		pricing: pricing,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, sku string) (domain.Product, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrInvalidOrder
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.SKU == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidOrder
	}
	if req.PricePaise < 1 {
		return domain.Product{}, store.ErrInvalidOrder
	}

	product := domain.Product{
		SKU:        req.SKU,
		Name:       req.Name,
		Category:   req.Category,
		PricePaise: req.PricePaise,
		Sizes:      req.Sizes,
		Colors:     req.Colors,
		Active:     true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.SKU, fmt.Sprintf("name=%s,price=%d", created.Name, created.PricePaise))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrInvalidOrder
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	oldPrice := existing.PricePaise
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		existing.Category = strings.TrimSpace(*req.Category)
	}
	if req.PricePaise != nil {
		if *req.PricePaise < 1 {
			return domain.Product{}, store.ErrInvalidOrder
		}
		existing.PricePaise = *req.PricePaise
	}
	if req.Sizes != nil {
		existing.Sizes = *req.Sizes
	}
	if req.Colors != nil {
		existing.Colors = *req.Colors
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	if updated.PricePaise != oldPrice {
		entry := domain.ProductPriceHistory{
			ID:            xid.New("price"),
			SKU:           updated.SKU,
			OldPricePaise: oldPrice,
			NewPricePaise: updated.PricePaise,
			ChangedBy:     actor.Username,
			ChangedAt:     time.Now().UTC(),
		}
		if err := s.repo.CreatePriceHistory(ctx, entry); err != nil {
			log.Warn().Err(err).Str("sku", updated.SKU).Msg("record price history")
		}
	}

	s.logAudit(ctx, "product_update", "product", updated.SKU, fmt.Sprintf("price=%d,active=%t", updated.PricePaise, updated.Active))
	return *updated, nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return nil, store.ErrInvalidOrder
	}
	return s.repo.ListPriceHistory(ctx, sku, limit)
}

// PreviewCoupon evaluates a coupon against a cart without consuming a use.
// Rejections come back in the response body, not as errors, so a storefront
// can show "coupon expired" next to the cart.
func (s *Service) PreviewCoupon(ctx context.Context, req domain.CouponPreviewRequest) (domain.CouponPreviewResponse, error) {
	code := normalizeCouponCode(req.Code)
	if code == "" {
		return domain.CouponPreviewResponse{}, store.ErrInvalidOrder
	}

	items := normalizeItems(req.Items)
	if len(items) == 0 {
		return domain.CouponPreviewResponse{}, store.ErrInvalidOrder
	}

	subtotal, _, err := s.priceItems(ctx, items)
	if err != nil {
		return domain.CouponPreviewResponse{}, err
	}

	coupon, err := s.lookupCoupon(ctx, code)
	if err != nil {
		return domain.CouponPreviewResponse{}, err
	}

	userCount := 0
	if coupon != nil {
		if actor, ok := ActorFromContext(ctx); ok {
			userCount, err = s.repo.CountUserRedemptions(ctx, coupon.ID, actor.Username)
			if err != nil {
				return domain.CouponPreviewResponse{}, err
			}
		}
	}

	result := discount.Evaluate(coupon, subtotal, userCount, time.Now().UTC())
	resp := domain.CouponPreviewResponse{
		Code:          code,
		Valid:         result.Valid,
		SubtotalPaise: subtotal,
		DiscountPaise: result.DiscountPaise,
	}
	if !result.Valid {
		resp.Reason = string(result.Reason)
	}
	return resp, nil
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CheckoutResponse{}, fmt.Errorf("authentication required")
	}

	initialPayment, supported := settlement.InitialPaymentStatus(req.PaymentMethod)
	if !supported {
		return domain.CheckoutResponse{}, store.ErrInvalidOrder
	}
	if req.PaymentMethod == domain.PaymentMethodUPI && strings.TrimSpace(req.UPIReference) == "" {
		return domain.CheckoutResponse{}, store.ErrInvalidOrder
	}
	if strings.TrimSpace(req.ShipTo) == "" {
		return domain.CheckoutResponse{}, store.ErrInvalidOrder
	}

	items := normalizeItems(req.Items)
	if len(items) == 0 {
		return domain.CheckoutResponse{}, store.ErrInvalidOrder
	}

	subtotal, lines, err := s.priceItems(ctx, items)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	var (
		couponID      string
		couponCode    string
		discountPaise int64
	)
	if code := normalizeCouponCode(req.CouponCode); code != "" {
		coupon, err := s.lookupCoupon(ctx, code)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}

		userCount := 0
		if coupon != nil {
			userCount, err = s.repo.CountUserRedemptions(ctx, coupon.ID, actor.Username)
			if err != nil {
				return domain.CheckoutResponse{}, err
			}
		}

		result := discount.Evaluate(coupon, subtotal, userCount, time.Now().UTC())
		if !result.Valid {
			return domain.CheckoutResponse{}, &discount.RejectionError{Reason: result.Reason}
		}
		couponID = coupon.ID
		couponCode = coupon.Code
		discountPaise = result.DiscountPaise
	}

	discounted := subtotal - discountPaise
	shipping := s.pricing.ShippingFlatPaise
	if s.pricing.FreeShippingMinPaise > 0 && discounted >= s.pricing.FreeShippingMinPaise {
		shipping = 0
	}
	tax := int64(math.Round(float64(discounted) * s.pricing.TaxRatePercent / 100))
	total := discounted + shipping + tax

	now := time.Now().UTC()
	order := domain.Order{
		ID:            xid.New("ord"),
		UserID:        actor.Username,
		Status:        domain.OrderStatusPlaced,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: initialPayment,
		UPIReference:  strings.TrimSpace(req.UPIReference),
		CouponID:      couponID,
		CouponCode:    couponCode,
		SubtotalPaise: subtotal,
		DiscountPaise: discountPaise,
		ShippingPaise: shipping,
		TaxPaise:      tax,
		TotalPaise:    total,
		ShipTo:        strings.TrimSpace(req.ShipTo),
		Items:         lines,
		CreatedAt:     now,
	}

	created, err := s.createOrderWithRetry(ctx, order)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.logAudit(ctx, "checkout", "order", created.ID,
		fmt.Sprintf("total=%d,payment=%s,coupon=%s,discount=%d", created.TotalPaise, created.PaymentMethod, created.CouponCode, created.DiscountPaise))

	return toCheckoutResponse(created), nil
}

// createOrderWithRetry retries transient persistence failures (connection
// drops, serialization aborts) with a short backoff. Business rejections are
// final on the first attempt: a coupon conflict or validation failure will
// not change by retrying.
func (s *Service) createOrderWithRetry(ctx context.Context, order domain.Order) (*domain.Order, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 50 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		created, err := s.repo.CreateOrder(ctx, order)
		if err == nil {
			return created, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
		log.Warn().Err(err).Str("order_id", order.ID).Int("attempt", attempt+1).Msg("order placement retry")
	}
	return nil, fmt.Errorf("order placement unavailable: %w", lastErr)
}

func isTransient(err error) bool {
	if errors.Is(err, store.ErrCouponConflict) ||
		errors.Is(err, store.ErrInvalidOrder) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var transitionErr *settlement.TransitionError
	return !errors.As(err, &transitionErr)
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, fmt.Errorf("authentication required")
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.Role != "admin" && order.UserID != actor.Username {
		return domain.Order{}, store.ErrNotFound
	}
	return *order, nil
}

func (s *Service) ListMyOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}
	return s.repo.ListOrdersByUser(ctx, actor.Username, limit)
}

// CancelOrder lets a customer cancel their own order while it has not
// shipped. The transition runs under the store's row lock, so a concurrent
// shipment wins or loses cleanly, never both.
func (s *Service) CancelOrder(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, fmt.Errorf("authentication required")
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.Role != "admin" && order.UserID != actor.Username {
		return domain.Order{}, store.ErrNotFound
	}
	if !settlement.CancellableByCustomer(order.Status) {
		return domain.Order{}, &settlement.TransitionError{Field: "status", From: order.Status, To: domain.OrderStatusCancelled}
	}

	cancelled, err := s.repo.AdvanceOrderStatus(ctx, orderID, domain.OrderStatusCancelled, actor.Username, strings.TrimSpace(reason), time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_cancel", "order", orderID, fmt.Sprintf("reason=%s", strings.TrimSpace(reason)))
	return *cancelled, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if status != "" && !settlement.IsOrderStatus(status) {
		return nil, store.ErrInvalidOrder
	}
	return s.repo.ListOrders(ctx, status, limit)
}

// AdvanceOrder moves an order's fulfillment status. Illegal targets are
// rejected with a typed transition error, never clamped.
func (s *Service) AdvanceOrder(ctx context.Context, orderID string, req domain.StatusAdvanceRequest) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Order{}, fmt.Errorf("admin role required")
	}
	if !settlement.IsOrderStatus(req.Status) {
		return domain.Order{}, store.ErrInvalidOrder
	}

	updated, err := s.repo.AdvanceOrderStatus(ctx, orderID, req.Status, actor.Username, strings.TrimSpace(req.Note), time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_status", "order", orderID, fmt.Sprintf("to=%s,payment=%s", updated.Status, updated.PaymentStatus))
	return *updated, nil
}

// ResolvePayment records the outcome of manual UPI verification. The audit
// entry is the attestation trail: who approved or rejected, when, and why.
func (s *Service) ResolvePayment(ctx context.Context, orderID string, req domain.PaymentDecisionRequest) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Order{}, fmt.Errorf("admin role required")
	}

	updated, err := s.repo.ResolvePayment(ctx, orderID, req.Approve, actor.Username, strings.TrimSpace(req.Note), time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	action := "payment_approve"
	if !req.Approve {
		action = "payment_reject"
	}
	s.logAudit(ctx, action, "order", orderID,
		fmt.Sprintf("payment=%s,status=%s,note=%s", updated.PaymentStatus, updated.Status, strings.TrimSpace(req.Note)))
	return *updated, nil
}

func (s *Service) CreateCoupon(ctx context.Context, req domain.CouponCreateRequest) (domain.Coupon, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Coupon{}, fmt.Errorf("admin role required")
	}

	code := normalizeCouponCode(req.Code)
	if code == "" {
		return domain.Coupon{}, store.ErrInvalidOrder
	}

	switch req.Type {
	case domain.CouponTypeFixed:
		if req.FlatPaise < 1 {
			return domain.Coupon{}, store.ErrInvalidOrder
		}
	case domain.CouponTypePercent:
		if req.Percent <= 0 || req.Percent > 100 {
			return domain.Coupon{}, store.ErrInvalidOrder
		}
	default:
		return domain.Coupon{}, store.ErrInvalidOrder
	}
	if req.MaxDiscountPaise < 0 || req.MinOrderPaise < 0 || req.MaxUses < 0 || req.MaxUsesPerUser < 0 {
		return domain.Coupon{}, store.ErrInvalidOrder
	}
	if req.ValidFrom.IsZero() || req.ValidUntil.IsZero() || !req.ValidUntil.After(req.ValidFrom) {
		return domain.Coupon{}, store.ErrInvalidOrder
	}

	coupon := domain.Coupon{
		ID:               xid.New("cpn"),
		Code:             code,
		Type:             req.Type,
		FlatPaise:        req.FlatPaise,
		Percent:          req.Percent,
		MaxDiscountPaise: req.MaxDiscountPaise,
		MinOrderPaise:    req.MinOrderPaise,
		MaxUses:          req.MaxUses,
		MaxUsesPerUser:   req.MaxUsesPerUser,
		Active:           true,
		ValidFrom:        req.ValidFrom.UTC(),
		ValidUntil:       req.ValidUntil.UTC(),
		CreatedAt:        time.Now().UTC(),
	}

	created, err := s.repo.CreateCoupon(ctx, coupon)
	if err != nil {
		return domain.Coupon{}, err
	}

	s.invalidateCoupon(ctx, created.Code)
	s.logAudit(ctx, "coupon_create", "coupon", created.ID,
		fmt.Sprintf("code=%s,type=%s,max_uses=%d", created.Code, created.Type, created.MaxUses))
	return *created, nil
}

func (s *Service) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListCoupons(ctx)
}

func (s *Service) SetCouponActive(ctx context.Context, couponID string, active bool) (domain.Coupon, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Coupon{}, fmt.Errorf("admin role required")
	}

	updated, err := s.repo.SetCouponActive(ctx, couponID, active)
	if err != nil {
		return domain.Coupon{}, err
	}

	s.invalidateCoupon(ctx, updated.Code)
	s.logAudit(ctx, "coupon_toggle", "coupon", couponID, fmt.Sprintf("code=%s,active=%t", updated.Code, active))
	return *updated, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	var from, to time.Time
	if date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidOrder
		}
		from = day
		to = day.Add(24*time.Hour - time.Nanosecond)
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// lookupCoupon reads through the coupon cache. A miss falls back to the
// repository; unknown codes return nil without error so evaluation reports
// NOT_FOUND.
func (s *Service) lookupCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	if cached, hit, err := s.coupons.Get(ctx, code); err == nil && hit {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("coupon cache read")
	}

	coupon, err := s.repo.GetCouponByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.coupons.Set(ctx, code, coupon, s.pricing.CouponCacheTTL); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("coupon cache write")
	}
	return coupon, nil
}

func (s *Service) invalidateCoupon(ctx context.Context, code string) {
	if err := s.coupons.Invalidate(ctx, code); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("coupon cache invalidate")
	}
}

// priceItems resolves cart lines against the catalog. Catalog prices are the
// only pricing authority.
func (s *Service) priceItems(ctx context.Context, items []domain.CartItem) (int64, []domain.OrderLine, error) {
	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.SKU)
	}

	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return 0, nil, err
	}

	subtotal := int64(0)
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		product, exists := products[item.SKU]
		if !exists {
			return 0, nil, fmt.Errorf("sku %s unavailable", item.SKU)
		}
		lineTotal := int64(item.Qty) * product.PricePaise
		subtotal += lineTotal
		lines = append(lines, domain.OrderLine{
			SKU:            product.SKU,
			Name:           product.Name,
			Size:           item.Size,
			Color:          item.Color,
			Qty:            item.Qty,
			UnitPricePaise: product.PricePaise,
			LineTotalPaise: lineTotal,
		})
	}
	return subtotal, lines, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("write audit log")
	}
}

func toCheckoutResponse(order *domain.Order) domain.CheckoutResponse {
	itemCount := 0
	for _, line := range order.Items {
		itemCount += line.Qty
	}
	return domain.CheckoutResponse{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		CouponCode:    order.CouponCode,
		SubtotalPaise: order.SubtotalPaise,
		DiscountPaise: order.DiscountPaise,
		ShippingPaise: order.ShippingPaise,
		TaxPaise:      order.TaxPaise,
		TotalPaise:    order.TotalPaise,
		ItemCount:     itemCount,
		CreatedAt:     order.CreatedAt.Format(time.RFC3339),
	}
}

// normalizeItems merges duplicate sku/size/color lines and drops empty ones.
func normalizeItems(items []domain.CartItem) []domain.CartItem {
	type lineKey struct {
		sku, size, color string
	}
	merged := make(map[lineKey]int, len(items))
	order := make([]lineKey, 0, len(items))
	for _, item := range items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if sku == "" || item.Qty < 1 {
			continue
		}
		key := lineKey{sku: sku, size: strings.TrimSpace(item.Size), color: strings.TrimSpace(item.Color)}
		if _, exists := merged[key]; !exists {
			order = append(order, key)
		}
		merged[key] += item.Qty
	}

	normalized := make([]domain.CartItem, 0, len(order))
	for _, key := range order {
		normalized = append(normalized, domain.CartItem{SKU: key.sku, Size: key.size, Color: key.color, Qty: merged[key]})
	}
	return normalized
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
