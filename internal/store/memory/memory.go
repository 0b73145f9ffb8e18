package memory

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"scoopos/backend/internal/domain"
	"scoopos/backend/internal/store"
	"scoopos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	clock           func() time.Time
	lastSaleID      int64
	products        map[string]domain.Product
	promotions      map[string]domain.Promotion
	paymentMethods  map[string]domain.PaymentMethod
	sales           map[int64]*domain.Sale
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty store. Most callers want NewSeeded.
func New() *Store {
	return &Store{
		clock:           time.Now,
		products:        make(map[string]domain.Product),
		promotions:      make(map[string]domain.Promotion),
		paymentMethods:  make(map[string]domain.PaymentMethod),
		sales:           make(map[int64]*domain.Sale),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// UsesDefaultCredentials reports whether seeded accounts fall back to the
// dev passwords because SEED_ADMIN_PASSWORD or SEED_CASHIER_PASSWORD is unset.
func UsesDefaultCredentials() bool {
	return os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == ""
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     domain.Role
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("memory: hash seed password for %s: %v", u.username, err))
		}
		users[u.username] = domain.UserAccount{
			User: domain.User{
				Username:  u.username,
				Role:      u.role,
				Active:    true,
				CreatedAt: now,
			},
			Password: string(hash),
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

// NewSeeded returns a store stocked like a small ice-cream shop.
func NewSeeded() *Store {
	s := New()

	d := decimal.RequireFromString
	products := []domain.Product{
		{ID: "cone-single", Name: "Single Scoop Cone", Category: "cones", UnitPrice: d("3.50"), Stock: d("200"), StockControlled: true, Type: domain.ProductTypeUnit, Active: true},
		{ID: "cone-waffle", Name: "Waffle Cone", Category: "cones", UnitPrice: d("4.25"), Stock: d("80"), StockControlled: true, Type: domain.ProductTypeUnit, Active: true},
		{ID: "cup-double", Name: "Double Scoop Cup", Category: "cups", UnitPrice: d("5.00"), Type: domain.ProductTypeUnit, Active: true},
		{ID: "gelato-kg", Name: "Gelato by Weight", Category: "gelato", UnitPrice: d("24.00"), Stock: d("15"), StockControlled: true, Type: domain.ProductTypeWeight, Active: true},
		{ID: "sundae-classic", Name: "Classic Sundae", Category: "desserts", UnitPrice: d("6.75"), Type: domain.ProductTypeUnit, Active: true},
		{ID: "topping-fudge", Name: "Hot Fudge", Category: "toppings", UnitPrice: d("0.80"), Type: domain.ProductTypeUnit, Active: true},
		{ID: "topping-sprinkles", Name: "Sprinkles", Category: "toppings", UnitPrice: d("0.50"), Type: domain.ProductTypeUnit, Active: true},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	now := time.Now().UTC()
	promotions := []domain.Promotion{
		{
			ID:            "promo-two-cones",
			Name:          "Two Cones 10% Off",
			DiscountType:  domain.DiscountPercentage,
			DiscountValue: d("10"),
			Active:        true,
			Products:      []domain.PromotionProduct{{ProductID: "cone-single", RequiredQty: d("2")}},
			CreatedAt:     now,
		},
		{
			ID:            "promo-fudge",
			Name:          "Fudge Trio",
			DiscountType:  domain.DiscountFixed,
			DiscountValue: d("0.40"),
			Active:        false,
			Products:      []domain.PromotionProduct{{ProductID: "topping-fudge", RequiredQty: d("3")}},
			CreatedAt:     now,
		},
	}
	for _, p := range promotions {
		s.promotions[p.ID] = p
	}

	for _, m := range []domain.PaymentMethod{
		{ID: "cash", Name: "Cash", Active: true},
		{ID: "card", Name: "Card", Active: true},
		{ID: "transfer", Name: "Bank Transfer", Active: true},
	} {
		s.paymentMethods[m.ID] = m
	}

	s.usersByUsername = seedUsers()
	return s
}

// SetClock replaces the time source used by Now.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) NextSaleID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSaleID++
	return s.lastSaleID, nil
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock().UTC()
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) LoadProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) ListPromotions(_ context.Context) ([]domain.Promotion, error) {
	return s.promotionsWhere(func(domain.Promotion) bool { return true }), nil
}

func (s *Store) LoadActivePromotions(_ context.Context) ([]domain.Promotion, error) {
	return s.promotionsWhere(func(p domain.Promotion) bool { return p.Active }), nil
}

func (s *Store) promotionsWhere(keep func(domain.Promotion) bool) []domain.Promotion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		if keep(p) {
			result = append(result, clonePromotion(p))
		}
	}
	slices.SortFunc(result, func(a, b domain.Promotion) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) CreatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if _, exists := s.promotions[promo.ID]; exists {
		return nil, store.ErrConflict
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = s.clock().UTC()
	}
	s.promotions[promo.ID] = clonePromotion(promo)
	created := clonePromotion(promo)
	return &created, nil
}

func (s *Store) SetPromotionActive(_ context.Context, id string, active bool) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, exists := s.promotions[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	promo.Active = active
	s.promotions[id] = promo
	updated := clonePromotion(promo)
	return &updated, nil
}

func (s *Store) ListPaymentMethods(_ context.Context) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	methods := make([]domain.PaymentMethod, 0, len(s.paymentMethods))
	for _, m := range s.paymentMethods {
		methods = append(methods, m)
	}
	slices.SortFunc(methods, func(a, b domain.PaymentMethod) int {
		return strings.Compare(a.ID, b.ID)
	})
	return methods, nil
}

func (s *Store) GetPaymentMethod(_ context.Context, id string) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.paymentMethods[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) PersistSale(_ context.Context, sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID < 1 {
		return fmt.Errorf("sale id must be assigned before persisting")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return store.ErrConflict
	}

	needed := stockNeeded(sale.Items)
	for productID, qty := range needed {
		product, exists := s.products[productID]
		if !exists {
			return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		if product.StockControlled && product.Stock.LessThan(qty) {
			return store.ErrInsufficientStock
		}
	}
	for productID, qty := range needed {
		product := s.products[productID]
		if !product.StockControlled {
			continue
		}
		product.Stock = product.Stock.Sub(qty)
		s.products[productID] = product
	}

	if sale.ID > s.lastSaleID {
		s.lastSaleID = sale.ID
	}
	s.sales[sale.ID] = cloneSale(&sale)
	return nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) QuerySales(_ context.Context, r domain.DateRange) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.sales {
		if !r.Contains(sale.CreatedAt) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CancelSale(_ context.Context, id int64, by string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidState
	}

	for productID, qty := range stockNeeded(sale.Items) {
		product, exists := s.products[productID]
		if !exists || !product.StockControlled {
			continue
		}
		product.Stock = product.Stock.Add(qty)
		s.products[productID] = product
	}

	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &at
	sale.CancelledBy = by
	sale.CancelReason = reason
	return cloneSale(sale), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.clock().UTC()
	}
	user.Permissions = slices.Clone(user.Permissions)
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	user.Permissions = slices.Clone(user.Permissions)
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		user.Permissions = slices.Clone(user.Permissions)
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	existing, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	existing.Role = user.Role
	existing.Active = user.Active
	existing.Permissions = slices.Clone(user.Permissions)
	s.usersByUsername[username] = existing

	updated := existing.User
	updated.Permissions = slices.Clone(existing.Permissions)
	return &updated, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func stockNeeded(items []domain.SaleItem) map[string]decimal.Decimal {
	needed := make(map[string]decimal.Decimal, len(items))
	for _, item := range items {
		needed[item.ProductID] = needed[item.ProductID].Add(item.Quantity)
	}
	return needed
}

func cloneSale(src *domain.Sale) *domain.Sale {
	dst := *src
	dst.Items = slices.Clone(src.Items)
	dst.Promotions = slices.Clone(src.Promotions)
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dst.CancelledAt = &at
	}
	return &dst
}

func clonePromotion(src domain.Promotion) domain.Promotion {
	dst := src
	dst.Products = slices.Clone(src.Products)
	return dst
}
