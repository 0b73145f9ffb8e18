package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"scoopos/backend/internal/domain"
	"scoopos/backend/internal/store"
	"scoopos/backend/internal/xid"
)

// Schema creates every table the store reads and writes. Statements are
// idempotent.
//
//go:embed schema.sql
var Schema string

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
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

	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) NextSaleID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('sales_id_seq')`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Now() time.Time {
	return s.now().UTC()
}

const productColumns = `id, name, category, unit_price, stock, stock_controlled, type, active`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.UnitPrice, &p.Stock, &p.StockControlled, &p.Type, &p.Active)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true OR $1
		ORDER BY category, name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) LoadProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit_price, stock, stock_controlled, type, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
	`, product.ID, product.Name, product.Category, product.UnitPrice, product.Stock, product.StockControlled, product.Type, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, unit_price = $4, stock = $5, stock_controlled = $6, active = $7, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.UnitPrice, product.Stock, product.StockControlled, product.Active)
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

	updated := product
	return &updated, nil
}

func (s *Store) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	return s.queryPromotions(ctx, false)
}

func (s *Store) LoadActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	return s.queryPromotions(ctx, true)
}

func (s *Store) queryPromotions(ctx context.Context, activeOnly bool) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.discount_type, p.discount_value, p.active, p.created_at,
			pp.product_id, pp.required_qty
		FROM promotions p
		LEFT JOIN promotion_products pp ON pp.promotion_id = p.id
		WHERE p.active = true OR NOT $1
		ORDER BY p.id, pp.position
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.Promotion, 0, 16)
	for rows.Next() {
		var promo domain.Promotion
		var productID sql.NullString
		var requiredQty decimal.NullDecimal
		if err := rows.Scan(&promo.ID, &promo.Name, &promo.DiscountType, &promo.DiscountValue, &promo.Active, &promo.CreatedAt, &productID, &requiredQty); err != nil {
			return nil, err
		}
		if n := len(promos); n == 0 || promos[n-1].ID != promo.ID {
			promo.CreatedAt = promo.CreatedAt.UTC()
			promo.Products = make([]domain.PromotionProduct, 0, 2)
			promos = append(promos, promo)
		}
		if productID.Valid {
			last := &promos[len(promos)-1]
			last.Products = append(last.Products, domain.PromotionProduct{
				ProductID:   productID.String,
				RequiredQty: requiredQty.Decimal,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return promos, nil
}

func (s *Store) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = s.Now()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO promotions (id, name, discount_type, discount_value, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, promo.ID, promo.Name, promo.DiscountType, promo.DiscountValue, promo.Active, promo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i, rule := range promo.Products {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO promotion_products (promotion_id, product_id, required_qty, position)
			VALUES ($1,$2,$3,$4)
		`, promo.ID, rule.ProductID, rule.RequiredQty, i)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	saved := promo
	saved.Products = slices.Clone(promo.Products)
	return &saved, nil
}

func (s *Store) SetPromotionActive(ctx context.Context, id string, active bool) (*domain.Promotion, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE promotions
		SET active = $2, updated_at = now()
		WHERE id = $1
	`, id, active)
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

	promos, err := s.queryPromotions(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, promo := range promos {
		if promo.ID == id {
			return &promo, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active
		FROM payment_methods
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]domain.PaymentMethod, 0, 4)
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Active); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return methods, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active
		FROM payment_methods
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) PersistSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID < 1 {
		return fmt.Errorf("sale id must be assigned before persisting")
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	needed, ids := stockNeeded(sale.Items)
	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT id, stock, stock_controlled
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return err
	}
	controlled := make(map[string]decimal.Decimal, len(ids))
	found := make(map[string]bool, len(ids))
	for stockRows.Next() {
		var id string
		var stock decimal.Decimal
		var isControlled bool
		if err := stockRows.Scan(&id, &stock, &isControlled); err != nil {
			_ = stockRows.Close()
			return err
		}
		found[id] = true
		if isControlled {
			controlled[id] = stock
		}
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return err
	}
	_ = stockRows.Close()

	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		if stock, ok := controlled[id]; ok && stock.LessThan(needed[id]) {
			return store.ErrInsufficientStock
		}
	}
	for _, id := range ids {
		if _, ok := controlled[id]; !ok {
			continue
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2
		`, needed[id], id)
		if err != nil {
			return err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, created_at, total, discount_total, final_total,
			payment_method_id, payment_method_name, created_by, source, status, note
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.CreatedAt, sale.Total, sale.DiscountTotal, sale.FinalTotal,
		sale.PaymentMethodID, sale.PaymentMethodName, sale.CreatedBy, sale.Source, sale.Status, sale.Note)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}

	for i, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, position, product_id, product_name, product_type, unit_price, quantity, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, sale.ID, i, item.ProductID, item.ProductName, item.ProductType, item.UnitPrice, item.Quantity, item.Subtotal)
		if err != nil {
			return err
		}
	}
	for i, promo := range sale.Promotions {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_promotions (sale_id, position, promotion_id, promotion_name, discount_amount)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, i, promo.PromotionID, promo.PromotionName, promo.DiscountAmount)
		if err != nil {
			return err
		}
	}

	return pgTx.Commit()
}

const saleColumns = `id, created_at, total, discount_total, final_total, payment_method_id, payment_method_name,
	created_by, source, status, note, cancelled_at, cancelled_by, cancel_reason`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var cancelledAt sql.NullTime
	err := row.Scan(
		&sale.ID,
		&sale.CreatedAt,
		&sale.Total,
		&sale.DiscountTotal,
		&sale.FinalTotal,
		&sale.PaymentMethodID,
		&sale.PaymentMethodName,
		&sale.CreatedBy,
		&sale.Source,
		&sale.Status,
		&sale.Note,
		&cancelledAt,
		&sale.CancelledBy,
		&sale.CancelReason,
	)
	if err != nil {
		return sale, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sale.CancelledAt = &at
	}
	sale.Items = make([]domain.SaleItem, 0, 4)
	sale.Promotions = make([]domain.SalePromotion, 0, 2)
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	sales := []domain.Sale{sale}
	if err := s.attachLines(ctx, sales, `sale_id = $1`, id); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) QuerySales(ctx context.Context, r domain.DateRange) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`, r.From, r.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	filter := `sale_id IN (SELECT id FROM sales WHERE created_at >= $1 AND created_at < $2)`
	if err := s.attachLines(ctx, sales, filter, r.From, r.To); err != nil {
		return nil, err
	}
	return sales, nil
}

// attachLines loads items and promotions for sales matching filter and
// appends them in their stored order.
func (s *Store) attachLines(ctx context.Context, sales []domain.Sale, filter string, args ...any) error {
	index := make(map[int64]int, len(sales))
	for i, sale := range sales {
		index[sale.ID] = i
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, product_type, unit_price, quantity, subtotal
		FROM sale_items
		WHERE `+filter+`
		ORDER BY sale_id, position
	`, args...)
	if err != nil {
		return err
	}
	for itemRows.Next() {
		var saleID int64
		var item domain.SaleItem
		if err := itemRows.Scan(&saleID, &item.ProductID, &item.ProductName, &item.ProductType, &item.UnitPrice, &item.Quantity, &item.Subtotal); err != nil {
			_ = itemRows.Close()
			return err
		}
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return err
	}
	_ = itemRows.Close()

	promoRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, promotion_id, promotion_name, discount_amount
		FROM sale_promotions
		WHERE `+filter+`
		ORDER BY sale_id, position
	`, args...)
	if err != nil {
		return err
	}
	defer promoRows.Close()
	for promoRows.Next() {
		var saleID int64
		var promo domain.SalePromotion
		if err := promoRows.Scan(&saleID, &promo.PromotionID, &promo.PromotionName, &promo.DiscountAmount); err != nil {
			return err
		}
		if i, ok := index[saleID]; ok {
			sales[i].Promotions = append(sales[i].Promotions, promo)
		}
	}
	return promoRows.Err()
}

func (s *Store) CancelSale(ctx context.Context, id int64, by string, reason string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status domain.SaleStatus
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidState
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, cancelled_at = $3, cancelled_by = $4, cancel_reason = $5
		WHERE id = $1
	`, id, domain.SaleStatusCancelled, at, by, reason)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE products p
		SET stock = p.stock + si.qty, updated_at = now()
		FROM (
			SELECT product_id, SUM(quantity) AS qty
			FROM sale_items
			WHERE sale_id = $1
			GROUP BY product_id
		) si
		WHERE p.id = si.product_id AND p.stock_controlled = true
	`, id)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, id)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.Now()
	}
	perms, err := encodePermissions(user.Permissions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, permissions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, user.Active, perms, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (domain.UserAccount, error) {
	var user domain.UserAccount
	var perms []byte
	if err := row.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &perms, &user.CreatedAt); err != nil {
		return user, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if perms != nil {
		if err := json.Unmarshal(perms, &user.Permissions); err != nil {
			return user, fmt.Errorf("decode permissions for %s: %w", user.Username, err)
		}
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, permissions, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, permissions, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	perms, err := encodePermissions(user.Permissions)
	if err != nil {
		return nil, err
	}

	account, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE app_users
		SET role = $2, active = $3, permissions = $4, updated_at = now()
		WHERE username = $1
		RETURNING username, password, role, active, permissions, created_at
	`, strings.ToLower(strings.TrimSpace(user.Username)), user.Role, user.Active, perms))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &account.User, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
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

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.Now()
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
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

// stockNeeded sums quantities per product and returns the product ids in
// sorted order so row locks are always taken in the same sequence.
func stockNeeded(items []domain.SaleItem) (map[string]decimal.Decimal, []string) {
	needed := make(map[string]decimal.Decimal, len(items))
	for _, item := range items {
		needed[item.ProductID] = needed[item.ProductID].Add(item.Quantity)
	}
	ids := make([]string, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return needed, ids
}

// encodePermissions keeps nil distinct from an empty list: NULL means the
// role defaults apply.
func encodePermissions(perms []domain.Permission) (any, error) {
	if perms == nil {
		return nil, nil
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
