package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"scoopos/backend/internal/domain"
	"scoopos/backend/internal/store"
	"scoopos/backend/internal/store/memory"
)

var testNow = time.Date(2026, 7, 15, 14, 30, 0, 0, time.UTC)

// recordingCache keeps entries per generation like the redis cache does.
type recordingCache struct {
	gen           int
	entries       map[string][]byte
	hits          int
	invalidations int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string][]byte)}
}

func (c *recordingCache) Generation(_ context.Context) (string, error) {
	return strconv.Itoa(c.gen), nil
}

func (c *recordingCache) Get(_ context.Context, gen string, key string, dest any) (bool, error) {
	raw, ok := c.entries[gen+":"+key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *recordingCache) Set(_ context.Context, gen string, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[gen+":"+key] = raw
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context) error {
	c.invalidations++
	c.gen++
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, *recordingCache) {
	t.Helper()
	repo := memory.NewSeeded()
	repo.SetClock(func() time.Time { return testNow })
	reports := newRecordingCache()
	return New(repo, reports, time.Minute, zap.NewNop()), repo, reports
}

func asAdmin() context.Context {
	return WithActor(context.Background(), domain.User{Username: "admin", Role: domain.RoleAdmin, Active: true})
}

func asCashier() context.Context {
	return WithActor(context.Background(), domain.User{Username: "cashier", Role: domain.RoleCashier, Active: true})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func conesCheckout(qty string) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		PaymentMethodID: "cash",
		Lines:           []domain.CartLine{{ProductID: "cone-single", Quantity: dec(qty)}},
	}
}

func TestCheckoutPersistsAppliesPromotionAndAudits(t *testing.T) {
	svc, repo, reports := newTestService(t)
	ctx := asCashier()

	sale, err := svc.Checkout(ctx, conesCheckout("2"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), sale.ID)
	assert.Equal(t, testNow, sale.CreatedAt)
	assert.True(t, sale.Total.Equal(dec("7")))
	assert.True(t, sale.DiscountTotal.Equal(dec("0.70")), "10%% of two cones: %s", sale.DiscountTotal)
	assert.True(t, sale.FinalTotal.Equal(dec("6.30")))
	assert.Equal(t, "cashier", sale.CreatedBy)
	require.Len(t, sale.Promotions, 1)
	assert.Equal(t, "promo-two-cones", sale.Promotions[0].PromotionID)

	stored, err := repo.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.True(t, stored.FinalTotal.Equal(sale.FinalTotal))

	cone, err := repo.LoadProduct(context.Background(), "cone-single")
	require.NoError(t, err)
	assert.True(t, cone.Stock.Equal(dec("198")))

	logs, err := repo.ListAuditLogs(context.Background(), testNow.Add(-time.Hour), testNow.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "sale_create", logs[0].Action)
	assert.Equal(t, "1", logs[0].EntityID)
	assert.Equal(t, 1, reports.invalidations)
}

func TestQuoteCheckoutDoesNotConsumeSaleID(t *testing.T) {
	svc, repo, _ := newTestService(t)

	quote, err := svc.QuoteCheckout(asCashier(), conesCheckout("2"))
	require.NoError(t, err)
	assert.Zero(t, quote.ID)
	assert.True(t, quote.FinalTotal.Equal(dec("6.30")))

	next, err := repo.NextSaleID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestCheckoutFailures(t *testing.T) {
	noPOS := WithActor(context.Background(), domain.User{Username: "viewer", Role: domain.RoleCashier, Active: true, Permissions: []domain.Permission{domain.PermSalesView}})
	override := dec("1.00")

	tests := []struct {
		name string
		ctx  context.Context
		req  domain.CheckoutRequest
		want error
	}{
		{name: "no actor", ctx: context.Background(), req: conesCheckout("1"), want: domain.ErrAuthorizationDenied},
		{name: "no pos access", ctx: noPOS, req: conesCheckout("1"), want: domain.ErrAuthorizationDenied},
		{
			name: "cashier manual discount",
			ctx:  asCashier(),
			req:  domain.CheckoutRequest{PaymentMethodID: "cash", ManualDiscount: dec("1"), Lines: conesCheckout("1").Lines},
			want: domain.ErrAuthorizationDenied,
		},
		{
			name: "cashier price override",
			ctx:  asCashier(),
			req:  domain.CheckoutRequest{PaymentMethodID: "cash", Lines: []domain.CartLine{{ProductID: "cone-single", Quantity: dec("1"), UnitPrice: &override}}},
			want: domain.ErrAuthorizationDenied,
		},
		{name: "unknown payment method", ctx: asCashier(), req: domain.CheckoutRequest{PaymentMethodID: "crypto", Lines: conesCheckout("1").Lines}, want: domain.ErrInvalidRequest},
		{name: "empty cart", ctx: asCashier(), req: domain.CheckoutRequest{PaymentMethodID: "cash"}, want: domain.ErrEmptyCart},
		{name: "out of stock", ctx: asCashier(), req: conesCheckout("500"), want: store.ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, reports := newTestService(t)

			_, err := svc.Checkout(tt.ctx, tt.req)

			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Zero(t, reports.invalidations)
			sales, qErr := repo.QuerySales(context.Background(), domain.DateRange{From: testNow.AddDate(0, 0, -1), To: testNow.AddDate(0, 0, 1)})
			require.NoError(t, qErr)
			assert.Empty(t, sales)
		})
	}
}

func TestAdminManualDiscount(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := conesCheckout("1")
	req.ManualDiscount = dec("0.50")

	sale, err := svc.Checkout(asAdmin(), req)
	require.NoError(t, err)

	assert.True(t, sale.FinalTotal.Equal(dec("3.00")))
	require.Len(t, sale.Promotions, 1)
	assert.Empty(t, sale.Promotions[0].PromotionID)
}

func TestReportsRequirePermission(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SalesSummary(asCashier(), domain.DateRange{})
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)

	_, err = svc.CompareSales(asCashier(), ComparisonQuery{Period: domain.PeriodDay})
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)

	granted := WithActor(context.Background(), domain.User{Username: "lead", Role: domain.RoleCashier, Active: true, Permissions: []domain.Permission{domain.PermReportsView}})
	_, err = svc.SalesSummary(granted, domain.DateRange{})
	assert.NoError(t, err)
}

func TestSalesSummaryIsCachedUntilNextSale(t *testing.T) {
	svc, _, reports := newTestService(t)
	admin := asAdmin()

	_, err := svc.Checkout(admin, conesCheckout("1"))
	require.NoError(t, err)

	first, err := svc.SalesSummary(admin, domain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Summary.TotalSales)

	second, err := svc.SalesSummary(admin, domain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, reports.hits)
	assert.True(t, second.Summary.TotalFinal.Equal(first.Summary.TotalFinal))

	_, err = svc.Checkout(admin, conesCheckout("1"))
	require.NoError(t, err)

	third, err := svc.SalesSummary(admin, domain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 2, third.Summary.TotalSales)
}

// checkoutDuringQuery records a sale right after the report query has read
// the store, the way a concurrent register would.
type checkoutDuringQuery struct {
	*memory.Store
	svc  *Service
	done bool
}

func (r *checkoutDuringQuery) QuerySales(ctx context.Context, dr domain.DateRange) ([]domain.Sale, error) {
	sales, err := r.Store.QuerySales(ctx, dr)
	if err != nil || r.done {
		return sales, err
	}
	r.done = true
	if _, err := r.svc.Checkout(ctx, conesCheckout("1")); err != nil {
		return nil, err
	}
	return sales, nil
}

func TestSalesSummaryComputedAcrossCheckoutIsNotServedStale(t *testing.T) {
	repo := memory.NewSeeded()
	repo.SetClock(func() time.Time { return testNow })
	racing := &checkoutDuringQuery{Store: repo}
	reports := newRecordingCache()
	svc := New(racing, reports, time.Minute, zap.NewNop())
	racing.svc = svc
	admin := asAdmin()

	first, err := svc.SalesSummary(admin, domain.DateRange{})
	require.NoError(t, err)
	assert.Zero(t, first.Summary.TotalSales)
	assert.Equal(t, 1, reports.invalidations)

	second, err := svc.SalesSummary(admin, domain.DateRange{})
	require.NoError(t, err)
	assert.Zero(t, reports.hits)
	assert.Equal(t, 1, second.Summary.TotalSales)

	third, err := svc.SalesSummary(admin, domain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, reports.hits)
	assert.Equal(t, 1, third.Summary.TotalSales)
}

func TestCancelledSaleLeavesReports(t *testing.T) {
	svc, repo, _ := newTestService(t)
	admin := asAdmin()

	sale, err := svc.Checkout(admin, conesCheckout("3"))
	require.NoError(t, err)

	_, err = svc.CancelSale(admin, sale.ID, domain.CancelSaleRequest{Reason: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	cancelled, err := svc.CancelSale(admin, sale.ID, domain.CancelSaleRequest{Reason: "customer changed mind"})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, cancelled.Status)

	_, err = svc.CancelSale(admin, sale.ID, domain.CancelSaleRequest{Reason: "twice"})
	assert.ErrorIs(t, err, store.ErrInvalidState)

	summary, err := svc.SalesSummary(admin, domain.DateRange{})
	require.NoError(t, err)
	assert.Zero(t, summary.Summary.TotalSales)

	cone, err := repo.LoadProduct(context.Background(), "cone-single")
	require.NoError(t, err)
	assert.True(t, cone.Stock.Equal(dec("200")))

	_, err = svc.CancelSale(asCashier(), sale.ID, domain.CancelSaleRequest{Reason: "nope"})
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
}

func TestCompareSalesWindows(t *testing.T) {
	svc, repo, _ := newTestService(t)
	admin := asAdmin()

	_, err := svc.Checkout(admin, conesCheckout("2"))
	require.NoError(t, err)

	yesterday := testNow.AddDate(0, 0, -1)
	repo.SetClock(func() time.Time { return yesterday })
	_, err = svc.Checkout(admin, conesCheckout("1"))
	require.NoError(t, err)
	repo.SetClock(func() time.Time { return testNow })

	cmp, err := svc.CompareSales(admin, ComparisonQuery{Period: domain.PeriodDay})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), cmp.Current.From)
	assert.Equal(t, time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC), cmp.Previous.From)
	assert.True(t, cmp.CurrentMetrics.TotalFinal.Equal(dec("6.30")))
	assert.True(t, cmp.PreviousMetrics.TotalFinal.Equal(dec("3.50")))
	assert.True(t, cmp.Deltas.TotalFinal.Equal(dec("2.80")))
	assert.Equal(t, 0, cmp.Deltas.TotalSales)
}

func TestCompareSalesRejectsBadQueries(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := asAdmin()
	current := domain.DateRange{From: testNow.AddDate(0, 0, -3), To: testNow}

	_, err := svc.CompareSales(admin, ComparisonQuery{Period: domain.PeriodCustom, Current: &current})
	assert.ErrorIs(t, err, domain.ErrMissingComparisonRange)

	_, err = svc.CompareSales(admin, ComparisonQuery{Period: domain.PeriodCustom})
	assert.ErrorIs(t, err, domain.ErrMissingComparisonRange)

	_, err = svc.CompareSales(admin, ComparisonQuery{Period: "quarter"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestProductPricesAndStockFitStoredPrecision(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := asAdmin()

	_, err := svc.CreateProduct(admin, domain.ProductCreateRequest{ID: "affogato", Name: "Affogato", UnitPrice: dec("4.505"), Type: domain.ProductTypeUnit})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = svc.CreateProduct(admin, domain.ProductCreateRequest{ID: "sorbet-kg", Name: "Sorbet", UnitPrice: dec("18"), Stock: dec("2.0005"), Type: domain.ProductTypeWeight})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	created, err := svc.CreateProduct(admin, domain.ProductCreateRequest{ID: "sorbet-kg", Name: "Sorbet", UnitPrice: dec("18.25"), Stock: dec("2.125"), Type: domain.ProductTypeWeight})
	require.NoError(t, err)
	assert.True(t, created.Stock.Equal(dec("2.125")))
}

func TestCreatePromotionValidates(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := asAdmin()

	_, err := svc.CreatePromotion(admin, domain.PromotionCreateRequest{
		Name:          "Ghost deal",
		DiscountType:  domain.DiscountFixed,
		DiscountValue: dec("1"),
		Products:      []domain.PromotionProduct{{ProductID: "ghost", RequiredQty: dec("1")}},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)

	_, err = svc.CreatePromotion(admin, domain.PromotionCreateRequest{Name: "No rules", DiscountType: domain.DiscountFixed, DiscountValue: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidPromotionDefinition)

	created, err := svc.CreatePromotion(admin, domain.PromotionCreateRequest{
		Name:          "Sundae Saver",
		DiscountType:  domain.DiscountFixed,
		DiscountValue: dec("1.25"),
		Products:      []domain.PromotionProduct{{ProductID: "sundae-classic", RequiredQty: dec("2")}},
	})
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.NotEmpty(t, created.ID)

	_, err = svc.CreatePromotion(asCashier(), domain.PromotionCreateRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
}

func TestUpdateUserPermissionOverride(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := asAdmin()

	none := []domain.Permission{}
	updated, err := svc.UpdateUser(admin, "cashier", domain.UserUpdateRequest{Permissions: &none})
	require.NoError(t, err)
	assert.NotNil(t, updated.Permissions)
	assert.Empty(t, updated.Permissions)

	bad := []domain.Permission{"pos:everything"}
	_, err = svc.UpdateUser(admin, "cashier", domain.UserUpdateRequest{Permissions: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	reset, err := svc.UpdateUser(admin, "cashier", domain.UserUpdateRequest{ResetPermissions: true})
	require.NoError(t, err)
	assert.Nil(t, reset.Permissions)

	inactive := false
	_, err = svc.UpdateUser(admin, "admin", domain.UserUpdateRequest{Active: &inactive})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.UpdateUser(admin, "nobody", domain.UserUpdateRequest{Active: &inactive})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, repo, _ := newTestService(t)

	user, err := svc.CreateUser(asAdmin(), domain.UserCreateRequest{Username: " Scoop01 ", Password: "vanilla99"})
	require.NoError(t, err)
	assert.Equal(t, "scoop01", user.Username)
	assert.Equal(t, domain.RoleCashier, user.Role)

	account, err := repo.GetUser(context.Background(), "scoop01")
	require.NoError(t, err)
	assert.NotEqual(t, "vanilla99", account.Password)
	assert.Contains(t, account.Password, "$2")

	_, err = svc.CreateUser(asAdmin(), domain.UserCreateRequest{Username: "scoop01", Password: "vanilla99"})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.CreateUser(asAdmin(), domain.UserCreateRequest{Username: "abc", Password: "vanilla99"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

type failingAuditRepo struct {
	*memory.Store
}

func (failingAuditRepo) CreateAuditLog(context.Context, domain.AuditLog) error {
	return errors.New("audit table locked")
}

func TestAuditFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	repo := memory.NewSeeded()
	svc := New(failingAuditRepo{repo}, nil, time.Minute, zap.New(core))

	_, err := svc.Checkout(asCashier(), conesCheckout("1"))
	require.NoError(t, err)

	entries := logs.FilterMessage("failed to write audit log").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "sale_create", fields["action"])
	assert.Equal(t, "sale", fields["entity_type"])
}
