package domain

import "time"

type Product struct {
	SKU        string   `json:"sku"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	PricePaise int64    `json:"price_paise"`
	Sizes      []string `json:"sizes,omitempty"`
	Colors     []string `json:"colors,omitempty"`
	Active     bool     `json:"active"`
}

type ProductCreateRequest struct {
	SKU        string   `json:"sku"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	PricePaise int64    `json:"price_paise"`
	Sizes      []string `json:"sizes,omitempty"`
	Colors     []string `json:"colors,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string   `json:"name,omitempty"`
	Category   *string   `json:"category,omitempty"`
	PricePaise *int64    `json:"price_paise,omitempty"`
	Sizes      *[]string `json:"sizes,omitempty"`
	Colors     *[]string `json:"colors,omitempty"`
	Active     *bool     `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	OldPricePaise int64     `json:"old_price_paise"`
	NewPricePaise int64     `json:"new_price_paise"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

// Coupon discount types.
const (
	CouponTypeFixed   = "fixed"
	CouponTypePercent = "percent"
)

type Coupon struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Type             string    `json:"type"`
	FlatPaise        int64     `json:"flat_paise,omitempty"`
	Percent          float64   `json:"percent,omitempty"`
	MaxDiscountPaise int64     `json:"max_discount_paise,omitempty"`
	MinOrderPaise    int64     `json:"min_order_paise"`
	MaxUses          int64     `json:"max_uses"`
	MaxUsesPerUser   int       `json:"max_uses_per_user"`
	UsedCount        int64     `json:"used_count"`
	Active           bool      `json:"active"`
	ValidFrom        time.Time `json:"valid_from"`
	ValidUntil       time.Time `json:"valid_until"`
	CreatedAt        time.Time `json:"created_at"`
}

type CouponCreateRequest struct {
	Code             string    `json:"code"`
	Type             string    `json:"type"`
	FlatPaise        int64     `json:"flat_paise"`
	Percent          float64   `json:"percent"`
	MaxDiscountPaise int64     `json:"max_discount_paise"`
	MinOrderPaise    int64     `json:"min_order_paise"`
	MaxUses          int64     `json:"max_uses"`
	MaxUsesPerUser   int       `json:"max_uses_per_user"`
	ValidFrom        time.Time `json:"valid_from"`
	ValidUntil       time.Time `json:"valid_until"`
}

type CouponRedemption struct {
	ID            string    `json:"id"`
	CouponID      string    `json:"coupon_id"`
	UserID        string    `json:"user_id"`
	OrderID       string    `json:"order_id"`
	DiscountPaise int64     `json:"discount_paise"`
	RedeemedAt    time.Time `json:"redeemed_at"`
}

type CouponPreviewRequest struct {
	Code  string     `json:"code"`
	Items []CartItem `json:"items"`
}

type CouponPreviewResponse struct {
	Code          string `json:"code"`
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	SubtotalPaise int64  `json:"subtotal_paise"`
	DiscountPaise int64  `json:"discount_paise"`
}

type CartItem struct {
	SKU   string `json:"sku"`
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
	Qty   int    `json:"qty"`
}

// Order fulfillment statuses.
const (
	OrderStatusPlaced     = "placed"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment statuses.
const (
	PaymentAwaitingVerification = "awaiting_verification"
	PaymentPending              = "pending"
	PaymentPaid                 = "paid"
	PaymentFailed               = "failed"
)

// Payment methods.
const (
	PaymentMethodUPI = "upi"
	PaymentMethodCOD = "cod"
)

type Order struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	Status        string       `json:"status"`
	PaymentMethod string       `json:"payment_method"`
	PaymentStatus string       `json:"payment_status"`
	UPIReference  string       `json:"upi_reference,omitempty"`
	CouponID      string       `json:"coupon_id,omitempty"`
	CouponCode    string       `json:"coupon_code,omitempty"`
	SubtotalPaise int64        `json:"subtotal_paise"`
	DiscountPaise int64        `json:"discount_paise"`
	ShippingPaise int64        `json:"shipping_paise"`
	TaxPaise      int64        `json:"tax_paise"`
	TotalPaise    int64        `json:"total_paise"`
	ShipTo        string       `json:"ship_to"`
	Items         []OrderLine  `json:"items"`
	Timeline      []OrderEvent `json:"timeline"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type OrderLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Size           string `json:"size,omitempty"`
	Color          string `json:"color,omitempty"`
	Qty            int    `json:"qty"`
	UnitPricePaise int64  `json:"unit_price_paise"`
	LineTotalPaise int64  `json:"line_total_paise"`
}

// OrderEvent is one immutable entry in an order's status timeline.
type OrderEvent struct {
	From  string    `json:"from,omitempty"`
	To    string    `json:"to"`
	Actor string    `json:"actor"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

type CheckoutRequest struct {
	Items         []CartItem `json:"items"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	UPIReference  string     `json:"upi_reference,omitempty"`
	ShipTo        string     `json:"ship_to"`
}

type CheckoutResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	CouponCode    string `json:"coupon_code,omitempty"`
	SubtotalPaise int64  `json:"subtotal_paise"`
	DiscountPaise int64  `json:"discount_paise"`
	ShippingPaise int64  `json:"shipping_paise"`
	TaxPaise      int64  `json:"tax_paise"`
	TotalPaise    int64  `json:"total_paise"`
	ItemCount     int    `json:"item_count"`
	CreatedAt     string `json:"created_at"`
}

type PaymentDecisionRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note,omitempty"`
}

type StatusAdvanceRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
