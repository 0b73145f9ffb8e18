package promotion

import (
	"fmt"
	"strings"

	"scoopos/backend/internal/domain"
)

// Validate checks a promotion definition at edit time.
func Validate(p domain.Promotion) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "name is required")
	}

	switch p.DiscountType {
	case domain.DiscountPercentage, domain.DiscountFixed:
	default:
		return invalid("discount_type", "discount type must be PERCENTAGE or FIXED")
	}

	if !p.DiscountValue.IsPositive() {
		return invalid("discount_value", "discount value must be positive")
	}
	if p.DiscountType == domain.DiscountPercentage && p.DiscountValue.GreaterThan(hundred) {
		return invalid("discount_value", "percentage cannot exceed 100")
	}

	if len(p.Products) == 0 {
		return invalid("products", "at least one product rule is required")
	}
	seen := make(map[string]struct{}, len(p.Products))
	for i, rule := range p.Products {
		field := fmt.Sprintf("products[%d]", i)
		if strings.TrimSpace(rule.ProductID) == "" {
			return invalid(field+".product_id", "product id is required")
		}
		if !rule.RequiredQty.IsPositive() {
			return invalid(field+".required_qty", "required quantity must be positive")
		}
		if _, dup := seen[rule.ProductID]; dup {
			return invalid(field+".product_id", "product listed twice")
		}
		seen[rule.ProductID] = struct{}{}
	}
	return nil
}

func invalid(field string, msg string) error {
	return domain.Fail(domain.KindInvalidPromotionDefinition, field, "%s", msg)
}
