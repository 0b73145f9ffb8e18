// Package promotion decides which catalog promotions apply to a cart and how
// much each one takes off.
package promotion

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"scoopos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type productTally struct {
	qty      decimal.Decimal
	subtotal decimal.Decimal
	price    decimal.Decimal
	priced   bool
}

// tally groups cart lines by product. The percentage base price is the lowest
// captured unit price among a product's lines.
func tally(lines []domain.CartLine) map[string]*productTally {
	result := make(map[string]*productTally, len(lines))
	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			continue
		}
		price := decimal.Zero
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		t, ok := result[line.ProductID]
		if !ok {
			t = &productTally{qty: decimal.Zero, subtotal: decimal.Zero}
			result[line.ProductID] = t
		}
		t.qty = t.qty.Add(line.Quantity)
		t.subtotal = t.subtotal.Add(price.Mul(line.Quantity))
		if !t.priced || price.LessThan(t.price) {
			t.price = price
			t.priced = true
		}
	}
	return result
}

// Match evaluates every active promotion against the cart. All matching
// promotions stack. A product's cumulative discount never exceeds its
// subtotal; promotions are visited in id order so the clamped remainder is
// attributed the same way regardless of input order.
func Match(lines []domain.CartLine, promos []domain.Promotion) []domain.AppliedPromotion {
	if len(lines) == 0 || len(promos) == 0 {
		return nil
	}

	cart := tally(lines)
	remaining := make(map[string]decimal.Decimal, len(cart))
	for id, t := range cart {
		remaining[id] = t.subtotal
	}

	ordered := slices.Clone(promos)
	slices.SortStableFunc(ordered, func(a, b domain.Promotion) int {
		return strings.Compare(a.ID, b.ID)
	})

	applied := make([]domain.AppliedPromotion, 0, len(ordered))
	for _, promo := range ordered {
		if !promo.Active {
			continue
		}

		result := domain.AppliedPromotion{
			PromotionID:  promo.ID,
			Name:         promo.Name,
			DiscountType: promo.DiscountType,
			Discount:     decimal.Zero,
		}
		for _, rule := range promo.Products {
			t, ok := cart[rule.ProductID]
			if !ok {
				continue
			}
			occurrences, raw := ruleDiscount(promo, rule, t)
			if occurrences == 0 {
				continue
			}

			amount := domain.RoundMoney(raw)
			if left := remaining[rule.ProductID]; amount.GreaterThan(left) {
				amount = left
			}
			if !amount.IsPositive() {
				continue
			}
			remaining[rule.ProductID] = remaining[rule.ProductID].Sub(amount)

			result.Discount = result.Discount.Add(amount)
			result.Lines = append(result.Lines, domain.AppliedPromotionLine{
				ProductID:   rule.ProductID,
				Occurrences: occurrences,
				Discount:    amount,
			})
		}

		if result.Discount.IsPositive() {
			applied = append(applied, result)
		}
	}

	return applied
}

// ruleDiscount returns how many times the rule fired and the unrounded
// discount it earned. The threshold is strict: below RequiredQty nothing fires.
func ruleDiscount(promo domain.Promotion, rule domain.PromotionProduct, t *productTally) (int64, decimal.Decimal) {
	if !rule.RequiredQty.IsPositive() || t.qty.LessThan(rule.RequiredQty) {
		return 0, decimal.Zero
	}
	if promo.DiscountValue.IsNegative() {
		return 0, decimal.Zero
	}

	switch promo.DiscountType {
	case domain.DiscountPercentage:
		rate := promo.DiscountValue
		if rate.GreaterThan(hundred) {
			rate = hundred
		}
		return 1, rate.Div(hundred).Mul(t.price).Mul(rule.RequiredQty)
	case domain.DiscountFixed:
		occurrences := t.qty.Div(rule.RequiredQty).Floor().IntPart()
		return occurrences, promo.DiscountValue.Mul(decimal.NewFromInt(occurrences))
	default:
		return 0, decimal.Zero
	}
}

// Total sums the discounts of a match result.
func Total(applied []domain.AppliedPromotion) decimal.Decimal {
	total := decimal.Zero
	for _, a := range applied {
		total = total.Add(a.Discount)
	}
	return total
}
