package promotion

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoopos/backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func line(productID string, qty string, price string) domain.CartLine {
	p := dec(price)
	return domain.CartLine{ProductID: productID, Quantity: dec(qty), UnitPrice: &p}
}

func rule(productID string, qty string) domain.PromotionProduct {
	return domain.PromotionProduct{ProductID: productID, RequiredQty: dec(qty)}
}

func TestMatchPercentageAppliesToQualifyingQuantity(t *testing.T) {
	promos := []domain.Promotion{{
		ID:            "promo-cone",
		Name:          "Cone 10%",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: dec("10"),
		Active:        true,
		Products:      []domain.PromotionProduct{rule("cone", "2")},
	}}

	applied := Match([]domain.CartLine{line("cone", "3", "10")}, promos)

	require.Len(t, applied, 1)
	assert.True(t, applied[0].Discount.Equal(dec("2")), "got %s", applied[0].Discount)
	require.Len(t, applied[0].Lines, 1)
	assert.Equal(t, int64(1), applied[0].Lines[0].Occurrences)
}

func TestMatchThresholdIsStrict(t *testing.T) {
	promos := []domain.Promotion{{
		ID:            "promo-cup",
		DiscountType:  domain.DiscountFixed,
		DiscountValue: dec("5"),
		Active:        true,
		Products:      []domain.PromotionProduct{rule("cup", "3")},
	}}

	assert.Empty(t, Match([]domain.CartLine{line("cup", "2", "8")}, promos))
	assert.Len(t, Match([]domain.CartLine{line("cup", "3", "8")}, promos), 1)
}

func TestMatchFixedAppliesPerOccurrence(t *testing.T) {
	promos := []domain.Promotion{{
		ID:            "promo-sundae",
		DiscountType:  domain.DiscountFixed,
		DiscountValue: dec("1.50"),
		Active:        true,
		Products:      []domain.PromotionProduct{rule("sundae", "2")},
	}}

	applied := Match([]domain.CartLine{line("sundae", "5", "12")}, promos)

	require.Len(t, applied, 1)
	assert.True(t, applied[0].Discount.Equal(dec("3")))
	assert.Equal(t, int64(2), applied[0].Lines[0].Occurrences)
}

func TestMatchSkipsInactiveAndAbsentProducts(t *testing.T) {
	promos := []domain.Promotion{
		{
			ID:            "promo-off",
			DiscountType:  domain.DiscountFixed,
			DiscountValue: dec("3"),
			Active:        false,
			Products:      []domain.PromotionProduct{rule("cone", "1")},
		},
		{
			ID:            "promo-missing",
			DiscountType:  domain.DiscountFixed,
			DiscountValue: dec("3"),
			Active:        true,
			Products:      []domain.PromotionProduct{rule("waffle", "1")},
		},
	}

	assert.Empty(t, Match([]domain.CartLine{line("cone", "4", "10")}, promos))
}

func TestMatchAggregatesLinesOfSameProduct(t *testing.T) {
	promos := []domain.Promotion{{
		ID:            "promo-cone",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: dec("50"),
		Active:        true,
		Products:      []domain.PromotionProduct{rule("cone", "2")},
	}}

	applied := Match([]domain.CartLine{line("cone", "1", "10"), line("cone", "1", "8")}, promos)

	require.Len(t, applied, 1)
	// 50% of the cheaper captured price times the two qualifying units.
	assert.True(t, applied[0].Discount.Equal(dec("8")), "got %s", applied[0].Discount)
}

func TestMatchClampsPerProductSubtotal(t *testing.T) {
	promos := []domain.Promotion{
		{
			ID:            "a-fixed",
			DiscountType:  domain.DiscountFixed,
			DiscountValue: dec("15"),
			Active:        true,
			Products:      []domain.PromotionProduct{rule("topping", "1")},
		},
		{
			ID:            "b-percent",
			DiscountType:  domain.DiscountPercentage,
			DiscountValue: dec("100"),
			Active:        true,
			Products:      []domain.PromotionProduct{rule("topping", "1")},
		},
	}

	applied := Match([]domain.CartLine{line("topping", "2", "4")}, promos)

	require.Len(t, applied, 1)
	assert.Equal(t, "a-fixed", applied[0].PromotionID)
	assert.True(t, Total(applied).Equal(dec("8")), "discount must stop at the subtotal, got %s", Total(applied))
}

func TestMatchStacksAcrossPromotions(t *testing.T) {
	promos := []domain.Promotion{
		{
			ID:            "p1",
			DiscountType:  domain.DiscountFixed,
			DiscountValue: dec("1"),
			Active:        true,
			Products:      []domain.PromotionProduct{rule("cone", "1"), rule("cup", "1")},
		},
		{
			ID:            "p2",
			DiscountType:  domain.DiscountPercentage,
			DiscountValue: dec("10"),
			Active:        true,
			Products:      []domain.PromotionProduct{rule("cone", "2")},
		},
	}
	lines := []domain.CartLine{line("cone", "2", "10"), line("cup", "1", "7")}

	applied := Match(lines, promos)

	require.Len(t, applied, 2)
	// p1: 2 on cone (two occurrences) + 1 on cup; p2: 10% of 2 x 10.
	assert.True(t, applied[0].Discount.Equal(dec("3")))
	assert.True(t, applied[1].Discount.Equal(dec("2")))
}

func TestMatchIsOrderIndependent(t *testing.T) {
	promos := []domain.Promotion{
		{ID: "p1", DiscountType: domain.DiscountFixed, DiscountValue: dec("6"), Active: true, Products: []domain.PromotionProduct{rule("cone", "1")}},
		{ID: "p2", DiscountType: domain.DiscountPercentage, DiscountValue: dec("75"), Active: true, Products: []domain.PromotionProduct{rule("cone", "2")}},
		{ID: "p3", DiscountType: domain.DiscountFixed, DiscountValue: dec("2.25"), Active: true, Products: []domain.PromotionProduct{rule("cup", "1")}},
		{ID: "p4", DiscountType: domain.DiscountPercentage, DiscountValue: dec("33"), Active: true, Products: []domain.PromotionProduct{rule("cup", "2"), rule("cone", "1")}},
	}
	lines := []domain.CartLine{line("cone", "3", "9.99"), line("cup", "2", "5.50")}

	want := Total(Match(lines, promos))
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Promotion(nil), promos...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Total(Match(lines, shuffled))
		assert.True(t, want.Equal(got), "shuffle %d: want %s got %s", i, want, got)
	}
}

func TestMatchRoundsToCents(t *testing.T) {
	promos := []domain.Promotion{{
		ID:            "p",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: dec("15"),
		Active:        true,
		Products:      []domain.PromotionProduct{rule("gelato", "0.35")},
	}}

	applied := Match([]domain.CartLine{line("gelato", "0.5", "23.90")}, promos)

	require.Len(t, applied, 1)
	// 0.15 x 23.90 x 0.35 = 1.254750
	assert.Equal(t, "1.25", applied[0].Discount.StringFixed(2))
}

func TestValidate(t *testing.T) {
	base := domain.Promotion{
		Name:          "Two cones",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: dec("10"),
		Products:      []domain.PromotionProduct{rule("cone", "2")},
	}
	require.NoError(t, Validate(base))

	tests := []struct {
		name   string
		mutate func(p *domain.Promotion)
		field  string
	}{
		{"missing name", func(p *domain.Promotion) { p.Name = " " }, "name"},
		{"unknown type", func(p *domain.Promotion) { p.DiscountType = "BOGO" }, "discount_type"},
		{"negative value", func(p *domain.Promotion) { p.DiscountValue = dec("-1") }, "discount_value"},
		{"percentage over 100", func(p *domain.Promotion) { p.DiscountValue = dec("100.01") }, "discount_value"},
		{"no rules", func(p *domain.Promotion) { p.Products = nil }, "products"},
		{"zero required qty", func(p *domain.Promotion) { p.Products = []domain.PromotionProduct{rule("cone", "0")} }, "products[0].required_qty"},
		{"duplicate product", func(p *domain.Promotion) {
			p.Products = []domain.PromotionProduct{rule("cone", "1"), rule("cone", "2")}
		}, "products[1].product_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.Products = append([]domain.PromotionProduct(nil), base.Products...)
			tt.mutate(&p)

			err := Validate(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidPromotionDefinition))
			failure, ok := domain.AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, failure.Field)
		})
	}

	fixed := base
	fixed.DiscountType = domain.DiscountFixed
	fixed.DiscountValue = dec("250")
	assert.NoError(t, Validate(fixed), "fixed discounts are not capped at 100")
}
