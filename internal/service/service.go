package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"scoopos/backend/internal/cache"
	"scoopos/backend/internal/domain"
	"scoopos/backend/internal/permission"
	"scoopos/backend/internal/promotion"
	"scoopos/backend/internal/report"
	"scoopos/backend/internal/sale"
	"scoopos/backend/internal/store"
	"scoopos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.User) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.User, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.User)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	builder  *sale.Builder
	reports  cache.ReportCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func New(repo store.Repository, reports cache.ReportCache, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		builder:  sale.NewBuilder(repo, repo),
		reports:  reports,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// authorize returns the actor from ctx when it holds p.
func authorize(ctx context.Context, p domain.Permission) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.User{}, domain.Fail(domain.KindAuthorizationDenied, string(p), "authentication required")
	}
	if err := permission.Require(actor, p); err != nil {
		return domain.User{}, err
	}
	return actor, nil
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	actor, err := authorize(ctx, domain.PermProductsView)
	if err != nil {
		return nil, err
	}
	if includeInactive && !permission.HasPermission(actor, domain.PermProductsEdit) {
		includeInactive = false
	}
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := authorize(ctx, domain.PermProductsEdit); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:              strings.TrimSpace(req.ID),
		Name:            strings.TrimSpace(req.Name),
		Category:        strings.TrimSpace(req.Category),
		UnitPrice:       req.UnitPrice,
		Stock:           req.Stock,
		StockControlled: req.StockControlled,
		Type:            req.Type,
		Active:          true,
	}
	if product.ID == "" {
		return domain.Product{}, domain.Fail(domain.KindInvalidRequest, "id", "product id is required")
	}
	if product.Type == "" {
		product.Type = domain.ProductTypeUnit
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,stock=%s", created.Name, created.UnitPrice, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := authorize(ctx, domain.PermProductsEdit); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.LoadProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.UnitPrice != nil {
		updated.UnitPrice = *req.UnitPrice
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.StockControlled != nil {
		updated.StockControlled = *req.StockControlled
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	detail := fmt.Sprintf("price=%s->%s,stock=%s->%s,active=%t", existing.UnitPrice, saved.UnitPrice, existing.Stock, saved.Stock, saved.Active)
	s.logAudit(ctx, "product_update", "product", saved.ID, detail)
	return *saved, nil
}

func validateProduct(p domain.Product) error {
	if p.Name == "" {
		return domain.Fail(domain.KindInvalidRequest, "name", "name is required")
	}
	if p.Type != domain.ProductTypeUnit && p.Type != domain.ProductTypeWeight {
		return domain.Fail(domain.KindInvalidRequest, "type", "type must be UNIT or WEIGHT")
	}
	if p.UnitPrice.IsNegative() {
		return domain.Fail(domain.KindInvalidPrice, "unit_price", "unit price cannot be negative")
	}
	if domain.HasMorePlaces(p.UnitPrice, domain.MoneyPlaces) {
		return domain.Fail(domain.KindInvalidPrice, "unit_price", "unit price allows at most %d decimals", domain.MoneyPlaces)
	}
	if p.Stock.IsNegative() {
		return domain.Fail(domain.KindInvalidQuantity, "stock", "stock cannot be negative")
	}
	if domain.HasMorePlaces(p.Stock, domain.QuantityPlaces) {
		return domain.Fail(domain.KindInvalidQuantity, "stock", "stock allows at most %d decimals", domain.QuantityPlaces)
	}
	return nil
}

func (s *Service) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	if _, err := authorize(ctx, domain.PermPromotionsView); err != nil {
		return nil, err
	}
	return s.repo.ListPromotions(ctx)
}

func (s *Service) CreatePromotion(ctx context.Context, req domain.PromotionCreateRequest) (domain.Promotion, error) {
	if _, err := authorize(ctx, domain.PermPromotionsEdit); err != nil {
		return domain.Promotion{}, err
	}

	promo := domain.Promotion{
		ID:            xid.New("promo"),
		Name:          strings.TrimSpace(req.Name),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		Active:        true,
		Products:      make([]domain.PromotionProduct, 0, len(req.Products)),
		CreatedAt:     s.repo.Now(),
	}
	for _, rule := range req.Products {
		promo.Products = append(promo.Products, domain.PromotionProduct{
			ProductID:   strings.TrimSpace(rule.ProductID),
			RequiredQty: rule.RequiredQty,
		})
	}
	if err := promotion.Validate(promo); err != nil {
		return domain.Promotion{}, err
	}
	for i, rule := range promo.Products {
		if _, err := s.repo.LoadProduct(ctx, rule.ProductID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Promotion{}, domain.Fail(domain.KindUnknownProduct, fmt.Sprintf("products[%d].product_id", i), "product %s not found", rule.ProductID)
			}
			return domain.Promotion{}, err
		}
	}

	created, err := s.repo.CreatePromotion(ctx, promo)
	if err != nil {
		return domain.Promotion{}, err
	}

	s.logAudit(ctx, "promotion_create", "promotion", created.ID, fmt.Sprintf("name=%s,type=%s,value=%s", created.Name, created.DiscountType, created.DiscountValue))
	return *created, nil
}

func (s *Service) SetPromotionActive(ctx context.Context, id string, active bool) (domain.Promotion, error) {
	if _, err := authorize(ctx, domain.PermPromotionsEdit); err != nil {
		return domain.Promotion{}, err
	}

	promo, err := s.repo.SetPromotionActive(ctx, strings.TrimSpace(id), active)
	if err != nil {
		return domain.Promotion{}, err
	}

	s.logAudit(ctx, "promotion_toggle", "promotion", promo.ID, fmt.Sprintf("active=%t", promo.Active))
	return *promo, nil
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	if _, err := authorize(ctx, domain.PermPOSAccess); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentMethods(ctx)
}

// QuoteCheckout prices a cart exactly as Checkout would, without persisting
// anything or consuming a sale id.
func (s *Service) QuoteCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	buildReq, err := s.prepareCheckout(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}
	return s.builder.Quote(ctx, buildReq)
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	buildReq, err := s.prepareCheckout(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}

	built, err := s.builder.Build(ctx, buildReq)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.repo.PersistSale(ctx, built); err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", fmt.Sprint(built.ID), fmt.Sprintf("final=%s,discount=%s,method=%s,source=%s", built.FinalTotal, built.DiscountTotal, built.PaymentMethodID, built.Source))
	s.invalidateReports(ctx)
	return built, nil
}

func (s *Service) prepareCheckout(ctx context.Context, req domain.CheckoutRequest) (sale.Request, error) {
	actor, err := authorize(ctx, domain.PermPOSAccess)
	if err != nil {
		return sale.Request{}, err
	}
	methodID := strings.TrimSpace(req.PaymentMethodID)
	if methodID == "" {
		return sale.Request{}, domain.Fail(domain.KindInvalidRequest, "payment_method_id", "payment method is required")
	}
	method, err := s.repo.GetPaymentMethod(ctx, methodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return sale.Request{}, domain.Fail(domain.KindInvalidRequest, "payment_method_id", "payment method %s not found", methodID)
		}
		return sale.Request{}, err
	}

	promos, err := s.repo.LoadActivePromotions(ctx)
	if err != nil {
		return sale.Request{}, err
	}

	return sale.Request{
		Lines:          req.Lines,
		PaymentMethod:  *method,
		Promotions:     promos,
		Actor:          actor,
		Source:         req.Source,
		ManualDiscount: req.ManualDiscount,
		Note:           req.Note,
	}, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	if _, err := authorize(ctx, domain.PermSalesView); err != nil {
		return domain.Sale{}, err
	}
	found, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *found, nil
}

func (s *Service) ListSales(ctx context.Context, r domain.DateRange) ([]domain.Sale, error) {
	if _, err := authorize(ctx, domain.PermSalesView); err != nil {
		return nil, err
	}
	r, err := s.rangeOrToday(r)
	if err != nil {
		return nil, err
	}
	return s.repo.QuerySales(ctx, r)
}

func (s *Service) CancelSale(ctx context.Context, id int64, req domain.CancelSaleRequest) (domain.Sale, error) {
	actor, err := authorize(ctx, domain.PermSalesCancel)
	if err != nil {
		return domain.Sale{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Sale{}, domain.Fail(domain.KindInvalidRequest, "reason", "cancel reason is required")
	}

	cancelled, err := s.repo.CancelSale(ctx, id, actor.Username, reason, s.repo.Now())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_cancel", "sale", fmt.Sprint(id), "reason="+reason)
	s.invalidateReports(ctx)
	return *cancelled, nil
}

func (s *Service) SalesSummary(ctx context.Context, r domain.DateRange) (domain.SalesReport, error) {
	if _, err := authorize(ctx, domain.PermReportsView); err != nil {
		return domain.SalesReport{}, err
	}
	r, err := s.rangeOrToday(r)
	if err != nil {
		return domain.SalesReport{}, err
	}

	key := "summary:" + rangeKey(r)
	gen, cacheable := s.cacheGeneration(ctx)
	var cached domain.SalesReport
	if cacheable && s.cacheGet(ctx, gen, key, &cached) {
		return cached, nil
	}

	sales, err := s.repo.QuerySales(ctx, r)
	if err != nil {
		return domain.SalesReport{}, err
	}
	result := domain.SalesReport{
		Range:          r,
		Summary:        report.Summarize(sales),
		PaymentMethods: report.ByPaymentMethod(sales),
		Sources:        report.BySource(sales),
	}
	if cacheable {
		s.cacheSet(ctx, gen, key, result)
	}
	return result, nil
}

func (s *Service) SalesByPaymentMethod(ctx context.Context, r domain.DateRange) ([]domain.PaymentMethodSummary, error) {
	summary, err := s.SalesSummary(ctx, r)
	if err != nil {
		return nil, err
	}
	return summary.PaymentMethods, nil
}

func (s *Service) SalesBySource(ctx context.Context, r domain.DateRange) ([]domain.SalesSourceSummary, error) {
	summary, err := s.SalesSummary(ctx, r)
	if err != nil {
		return nil, err
	}
	return summary.Sources, nil
}

func (s *Service) TopProducts(ctx context.Context, r domain.DateRange, limit int) ([]domain.TopProduct, error) {
	if _, err := authorize(ctx, domain.PermReportsView); err != nil {
		return nil, err
	}
	r, err := s.rangeOrToday(r)
	if err != nil {
		return nil, err
	}

	sales, err := s.repo.QuerySales(ctx, r)
	if err != nil {
		return nil, err
	}
	return report.TopProducts(sales, limit), nil
}

// ComparisonQuery selects the two windows of a comparison. Current defaults
// to the period containing now; Previous is only read for custom periods.
type ComparisonQuery struct {
	Period   domain.PeriodType
	Current  *domain.DateRange
	Previous *domain.DateRange
}

func (s *Service) CompareSales(ctx context.Context, q ComparisonQuery) (domain.SalesComparison, error) {
	if _, err := authorize(ctx, domain.PermReportsView); err != nil {
		return domain.SalesComparison{}, err
	}
	if !report.ValidPeriod(q.Period) {
		return domain.SalesComparison{}, domain.Fail(domain.KindInvalidRequest, "period", "unknown period %q", q.Period)
	}

	var current domain.DateRange
	if q.Current != nil {
		current = *q.Current
	} else {
		var err error
		current, err = report.CurrentPeriod(q.Period, s.repo.Now())
		if err != nil {
			return domain.SalesComparison{}, err
		}
	}
	previous, err := report.PreviousPeriod(q.Period, current, q.Previous)
	if err != nil {
		return domain.SalesComparison{}, err
	}

	key := fmt.Sprintf("compare:%s:%s:%s", q.Period, rangeKey(current), rangeKey(previous))
	gen, cacheable := s.cacheGeneration(ctx)
	var cached domain.SalesComparison
	if cacheable && s.cacheGet(ctx, gen, key, &cached) {
		return cached, nil
	}

	currentSales, err := s.repo.QuerySales(ctx, current)
	if err != nil {
		return domain.SalesComparison{}, err
	}
	previousSales, err := s.repo.QuerySales(ctx, previous)
	if err != nil {
		return domain.SalesComparison{}, err
	}

	result := report.Compare(q.Period, current, currentSales, previous, previousSales)
	if cacheable {
		s.cacheSet(ctx, gen, key, result)
	}
	return result, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := authorize(ctx, domain.PermUsersManage); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, account.User)
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if _, err := authorize(ctx, domain.PermUsersManage); err != nil {
		return domain.User{}, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.User{}, domain.Fail(domain.KindInvalidRequest, "username", "username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.User{}, domain.Fail(domain.KindInvalidRequest, "username", "username must not contain spaces")
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.User{}, domain.Fail(domain.KindInvalidRequest, "password", "password must be at least 6 characters")
	}
	role := req.Role
	if role == "" {
		role = domain.RoleCashier
	}
	if !permission.ValidRole(role) {
		return domain.User{}, domain.Fail(domain.KindInvalidRequest, "role", "unknown role %q", req.Role)
	}
	perms, err := permission.Normalize(req.Permissions)
	if err != nil {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		Username:    username,
		Role:        role,
		Active:      true,
		Permissions: perms,
		CreatedAt:   s.repo.Now(),
	}
	if err := s.repo.CreateUser(ctx, domain.UserAccount{User: user, Password: string(hash)}); err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", "user", username, fmt.Sprintf("role=%s", role))
	return user, nil
}

func (s *Service) UpdateUser(ctx context.Context, username string, req domain.UserUpdateRequest) (domain.User, error) {
	actor, err := authorize(ctx, domain.PermUsersManage)
	if err != nil {
		return domain.User{}, err
	}

	account, err := s.repo.GetUser(ctx, username)
	if err != nil {
		return domain.User{}, err
	}

	user := account.User
	if req.Active != nil {
		if !*req.Active && user.Username == actor.Username {
			return domain.User{}, domain.Fail(domain.KindInvalidRequest, "active", "cannot deactivate your own account")
		}
		user.Active = *req.Active
	}
	switch {
	case req.ResetPermissions:
		user.Permissions = nil
	case req.Permissions != nil:
		perms, err := permission.Normalize(*req.Permissions)
		if err != nil {
			return domain.User{}, err
		}
		if perms == nil {
			perms = []domain.Permission{}
		}
		user.Permissions = perms
	}

	updated, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_update", "user", updated.Username, fmt.Sprintf("active=%t,permissions=%v", updated.Active, updated.Permissions))
	return *updated, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, r domain.DateRange, limit int) ([]domain.AuditLog, error) {
	if _, err := authorize(ctx, domain.PermAuditView); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	r, err := s.rangeOrToday(r)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, r.From, r.To, limit)
}

// rangeOrToday fills an unset range with the current UTC day and rejects
// inverted ones.
func (s *Service) rangeOrToday(r domain.DateRange) (domain.DateRange, error) {
	if r.From.IsZero() && r.To.IsZero() {
		now := s.repo.Now()
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return domain.DateRange{From: from, To: from.AddDate(0, 0, 1)}, nil
	}
	if r.From.IsZero() || r.To.IsZero() {
		return domain.DateRange{}, domain.Fail(domain.KindInvalidRequest, "from", "both from and to are required")
	}
	if !r.To.After(r.From) {
		return domain.DateRange{}, domain.Fail(domain.KindInvalidRequest, "to", "range end must be after its start")
	}
	return r, nil
}

func rangeKey(r domain.DateRange) string {
	return r.From.UTC().Format(time.RFC3339) + "/" + r.To.UTC().Format(time.RFC3339)
}

// cacheGeneration reads the cache generation once per report. The report is
// stored under it even if a sale invalidates the cache meanwhile.
func (s *Service) cacheGeneration(ctx context.Context) (string, bool) {
	gen, err := s.reports.Generation(ctx)
	if err != nil {
		s.logger.Warn("report cache generation read failed", zap.Error(err))
		return "", false
	}
	return gen, true
}

func (s *Service) cacheGet(ctx context.Context, gen string, key string, dest any) bool {
	hit, err := s.reports.Get(ctx, gen, key, dest)
	if err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, gen string, key string, value any) {
	if err := s.reports.Set(ctx, gen, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.User{Username: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.repo.Now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}
