package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vastra/backend/internal/domain"
	"vastra/backend/internal/settlement"
	"vastra/backend/internal/store"
	"vastra/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	if err := runMigrations(databaseURL); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, price_paise, sizes, colors, active
		FROM products
		WHERE active = true
		ORDER BY category ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, price_paise, sizes, colors, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, product.SKU, product.Name, product.Category, product.PricePaise, joinList(product.Sizes), joinList(product.Colors), product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidOrder
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sku, name, category, price_paise, sizes, colors, active
		FROM products
		WHERE sku = $1
	`, sku)

	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_paise = $4, sizes = $5, colors = $6, active = $7, updated_at = now()
		WHERE sku = $1
	`, product.SKU, product.Name, product.Category, product.PricePaise, joinList(product.Sizes), joinList(product.Colors), product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("price")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, sku, old_price_paise, new_price_paise, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.SKU, entry.OldPricePaise, entry.NewPricePaise, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, old_price_paise, new_price_paise, changed_by, changed_at
		FROM product_price_history
		WHERE sku = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.SKU, &entry.OldPricePaise, &entry.NewPricePaise, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	if len(skus) == 0 {
		return map[string]domain.Product{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, price_paise, sizes, colors, active
		FROM products
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]domain.Product, len(skus))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[product.SKU] = product
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	if coupon.ID == "" {
		coupon.ID = xid.New("cpn")
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (
			id, code, type, flat_paise, percent, max_discount_paise, min_order_paise,
			max_uses, max_uses_per_user, used_count, active, valid_from, valid_until, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11,$12,$13)
	`, coupon.ID, coupon.Code, coupon.Type, coupon.FlatPaise, coupon.Percent, coupon.MaxDiscountPaise,
		coupon.MinOrderPaise, coupon.MaxUses, coupon.MaxUsesPerUser, coupon.Active,
		coupon.ValidFrom, coupon.ValidUntil, coupon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidOrder
		}
		return nil, err
	}
	return &coupon, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return s.findCoupon(ctx, "code", code)
}

func (s *Store) findCoupon(ctx context.Context, column string, value string) (*domain.Coupon, error) {
	// column is always a fixed identifier chosen by the caller, never user input.
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, type, flat_paise, percent, max_discount_paise, min_order_paise,
		       max_uses, max_uses_per_user, used_count, active, valid_from, valid_until, created_at
		FROM coupons
		WHERE `+column+` = $1
	`, value)

	coupon, err := scanCoupon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (s *Store) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, type, flat_paise, percent, max_discount_paise, min_order_paise,
		       max_uses, max_uses_per_user, used_count, active, valid_from, valid_until, created_at
		FROM coupons
		ORDER BY code ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coupons := make([]domain.Coupon, 0, 16)
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return coupons, nil
}

func (s *Store) SetCouponActive(ctx context.Context, couponID string, active bool) (*domain.Coupon, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coupons SET active = $2 WHERE id = $1
	`, couponID, active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.findCoupon(ctx, "id", couponID)
}

func (s *Store) CountUserRedemptions(ctx context.Context, couponID string, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT times_used FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2
	`, couponID, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CommitRedemption(ctx context.Context, couponID string, userID string, maxUsesPerUser int) error {
	// Read committed is deliberate here: a blocked conditional UPDATE
	// re-evaluates its predicate once the winner commits, so the loser sees
	// the exhausted counter and reports a conflict instead of aborting with a
	// serialization failure.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := commitRedemptionTx(ctx, tx, couponID, userID, maxUsesPerUser); err != nil {
		return err
	}
	return tx.Commit()
}

// commitRedemptionTx consumes one use of a coupon inside the caller's
// transaction. Both counters advance through conditional updates: zero rows
// affected means the limit is exhausted and the whole transaction must roll
// back.
func commitRedemptionTx(ctx context.Context, tx *sql.Tx, couponID string, userID string, maxUsesPerUser int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE id = $1 AND (max_uses = 0 OR used_count < max_uses)
	`, couponID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, couponID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrCouponConflict
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO coupon_usages (coupon_id, user_id, times_used)
		VALUES ($1, $2, 1)
		ON CONFLICT (coupon_id, user_id) DO UPDATE
		SET times_used = coupon_usages.times_used + 1
		WHERE $3 = 0 OR coupon_usages.times_used < $3
	`, couponID, userID, maxUsesPerUser)
	if err != nil {
		return err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrCouponConflict
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" || order.UserID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidOrder
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if order.CouponID != "" {
		var maxUsesPerUser int
		err := tx.QueryRowContext(ctx, `SELECT max_uses_per_user FROM coupons WHERE id = $1`, order.CouponID).Scan(&maxUsesPerUser)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if err := commitRedemptionTx(ctx, tx, order.CouponID, order.UserID, maxUsesPerUser); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, payment_method, payment_status, upi_reference,
			coupon_id, coupon_code, subtotal_paise, discount_paise, shipping_paise,
			tax_paise, total_paise, ship_to, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
	`, order.ID, order.UserID, order.Status, order.PaymentMethod, order.PaymentStatus,
		nullIfEmpty(order.UPIReference), nullIfEmpty(order.CouponID), nullIfEmpty(order.CouponCode),
		order.SubtotalPaise, order.DiscountPaise, order.ShippingPaise, order.TaxPaise,
		order.TotalPaise, order.ShipTo, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidOrder
		}
		return nil, err
	}

	for lineNo, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, sku, name, size, color, qty, unit_price_paise, line_total_paise)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, order.ID, lineNo+1, item.SKU, item.Name, item.Size, item.Color, item.Qty, item.UnitPricePaise, item.LineTotalPaise)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_events (order_id, from_status, to_status, actor, note, at)
		VALUES ($1, '', $2, $3, '', $4)
	`, order.ID, order.Status, order.UserID, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	if order.CouponID != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO coupon_redemptions (id, coupon_id, user_id, order_id, discount_paise, redeemed_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, xid.New("rdm"), order.CouponID, order.UserID, order.ID, order.DiscountPaise, order.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.UpdatedAt = order.CreatedAt
	order.Timeline = []domain.OrderEvent{{To: order.Status, Actor: order.UserID, At: order.CreatedAt}}
	return &order, nil
}

func (s *Store) GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, payment_method, payment_status, upi_reference,
		       coupon_id, coupon_code, subtotal_paise, discount_paise, shipping_paise,
		       tax_paise, total_paise, ship_to, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadOrderDetails(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) loadOrderDetails(ctx context.Context, order *domain.Order) error {
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, size, color, qty, unit_price_paise, line_total_paise
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no ASC
	`, order.ID)
	if err != nil {
		return err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.OrderLine
		if err := itemRows.Scan(&item.SKU, &item.Name, &item.Size, &item.Color, &item.Qty, &item.UnitPricePaise, &item.LineTotalPaise); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return err
	}

	eventRows, err := s.db.QueryContext(ctx, `
		SELECT from_status, to_status, actor, note, at
		FROM order_events
		WHERE order_id = $1
		ORDER BY id ASC
	`, order.ID)
	if err != nil {
		return err
	}
	defer eventRows.Close()

	for eventRows.Next() {
		var event domain.OrderEvent
		if err := eventRows.Scan(&event.From, &event.To, &event.Actor, &event.Note, &event.At); err != nil {
			return err
		}
		event.At = event.At.UTC()
		order.Timeline = append(order.Timeline, event)
	}
	return eventRows.Err()
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, status, payment_method, payment_status, upi_reference,
		       coupon_id, coupon_code, subtotal_paise, discount_paise, shipping_paise,
		       tax_paise, total_paise, ship_to, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, user_id, status, payment_method, payment_status, upi_reference,
			       coupon_id, coupon_code, subtotal_paise, discount_paise, shipping_paise,
			       tax_paise, total_paise, ship_to, created_at, updated_at
			FROM orders
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, status, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, user_id, status, payment_method, payment_status, upi_reference,
			       coupon_id, coupon_code, subtotal_paise, discount_paise, shipping_paise,
			       tax_paise, total_paise, ship_to, created_at, updated_at
			FROM orders
			ORDER BY created_at DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) AdvanceOrderStatus(ctx context.Context, orderID string, to string, actor string, note string, at time.Time) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var from, method, paymentStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status, payment_method, payment_status
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&from, &method, &paymentStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := settlement.ValidateOrderTransition(from, to); err != nil {
		return nil, err
	}

	newPaymentStatus := paymentStatus
	if to == domain.OrderStatusDelivered && settlement.SettlesCODOnDelivery(method, paymentStatus) {
		newPaymentStatus = domain.PaymentPaid
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, updated_at = $4 WHERE id = $1
	`, orderID, to, newPaymentStatus, at)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_events (order_id, from_status, to_status, actor, note, at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, orderID, from, to, actor, note, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrderByID(ctx, orderID)
}

func (s *Store) ResolvePayment(ctx context.Context, orderID string, approve bool, actor string, note string, at time.Time) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status, method, paymentStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status, payment_method, payment_status
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&status, &method, &paymentStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	target := domain.PaymentPaid
	if !approve {
		target = domain.PaymentFailed
	}
	// Manual resolution is the UPI verification path only. COD settles on
	// delivery through AdvanceOrderStatus.
	if method != domain.PaymentMethodUPI {
		return nil, &settlement.TransitionError{Field: "payment_status", From: paymentStatus, To: target}
	}
	if err := settlement.ValidatePaymentTransition(method, paymentStatus, target); err != nil {
		return nil, err
	}

	if approve {
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET payment_status = $2, updated_at = $3 WHERE id = $1
		`, orderID, target, at)
		if err != nil {
			return nil, err
		}
	} else {
		// Rejection fails the payment and cancels the order in one update so
		// the two fields can never be observed out of step.
		if err := settlement.ValidateOrderTransition(status, domain.OrderStatusCancelled); err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET payment_status = $2, status = $3, updated_at = $4 WHERE id = $1
		`, orderID, target, domain.OrderStatusCancelled, at)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_events (order_id, from_status, to_status, actor, note, at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, orderID, status, domain.OrderStatusCancelled, actor, note, at)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrderByID(ctx, orderID)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-30 * 24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidOrder
	}
	if user.Role == "" {
		user.Role = "customer"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidOrder
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidOrder
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := make([]domain.Order, 0, 16)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	var sizes, colors string
	if err := row.Scan(&product.SKU, &product.Name, &product.Category, &product.PricePaise, &sizes, &colors, &product.Active); err != nil {
		return domain.Product{}, err
	}
	product.Sizes = splitList(sizes)
	product.Colors = splitList(colors)
	return product, nil
}

func scanCoupon(row rowScanner) (domain.Coupon, error) {
	var coupon domain.Coupon
	err := row.Scan(
		&coupon.ID, &coupon.Code, &coupon.Type, &coupon.FlatPaise, &coupon.Percent,
		&coupon.MaxDiscountPaise, &coupon.MinOrderPaise, &coupon.MaxUses, &coupon.MaxUsesPerUser,
		&coupon.UsedCount, &coupon.Active, &coupon.ValidFrom, &coupon.ValidUntil, &coupon.CreatedAt,
	)
	if err != nil {
		return domain.Coupon{}, err
	}
	coupon.ValidFrom = coupon.ValidFrom.UTC()
	coupon.ValidUntil = coupon.ValidUntil.UTC()
	coupon.CreatedAt = coupon.CreatedAt.UTC()
	return coupon, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	var upiRef, couponID, couponCode sql.NullString
	err := row.Scan(
		&order.ID, &order.UserID, &order.Status, &order.PaymentMethod, &order.PaymentStatus,
		&upiRef, &couponID, &couponCode, &order.SubtotalPaise, &order.DiscountPaise,
		&order.ShippingPaise, &order.TaxPaise, &order.TotalPaise, &order.ShipTo,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.UPIReference = upiRef.String
	order.CouponID = couponID.String
	order.CouponCode = couponCode.String
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func joinList(values []string) string {
	return strings.Join(values, ",")
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
