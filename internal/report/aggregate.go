// Package report aggregates windows of persisted sales. Every function is a
// pure function of its input; cancelled sales are ignored throughout.
package report

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"scoopos/backend/internal/domain"
)

func counted(sales []domain.Sale) []domain.Sale {
	result := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if s.Cancelled() {
			continue
		}
		result = append(result, s)
	}
	return result
}

func Summarize(sales []domain.Sale) domain.SalesSummary {
	summary := domain.SalesSummary{
		TotalAmount:   decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalFinal:    decimal.Zero,
	}
	for _, s := range counted(sales) {
		summary.TotalSales++
		summary.TotalAmount = summary.TotalAmount.Add(s.Total)
		summary.TotalDiscount = summary.TotalDiscount.Add(s.DiscountTotal)
		summary.TotalFinal = summary.TotalFinal.Add(s.FinalTotal)
	}
	return summary
}

// ByPaymentMethod groups by payment method id. Methods without sales are
// omitted. Output is ordered by total final descending, then id.
func ByPaymentMethod(sales []domain.Sale) []domain.PaymentMethodSummary {
	index := make(map[string]int)
	result := make([]domain.PaymentMethodSummary, 0, 4)
	for _, s := range counted(sales) {
		i, ok := index[s.PaymentMethodID]
		if !ok {
			i = len(result)
			index[s.PaymentMethodID] = i
			result = append(result, domain.PaymentMethodSummary{
				PaymentMethodID:   s.PaymentMethodID,
				PaymentMethodName: s.PaymentMethodName,
				TotalFinal:        decimal.Zero,
			})
		}
		result[i].TotalSales++
		result[i].TotalFinal = result[i].TotalFinal.Add(s.FinalTotal)
	}

	slices.SortFunc(result, func(a, b domain.PaymentMethodSummary) int {
		if c := b.TotalFinal.Cmp(a.TotalFinal); c != 0 {
			return c
		}
		return strings.Compare(a.PaymentMethodID, b.PaymentMethodID)
	})
	return result
}

// BySource groups by sale source; a sale without one counts as LOCAL.
func BySource(sales []domain.Sale) []domain.SalesSourceSummary {
	index := make(map[domain.SaleSource]int)
	result := make([]domain.SalesSourceSummary, 0, 2)
	for _, s := range counted(sales) {
		source := s.Source
		if source == "" {
			source = domain.SourceLocal
		}
		i, ok := index[source]
		if !ok {
			i = len(result)
			index[source] = i
			result = append(result, domain.SalesSourceSummary{Source: source, TotalFinal: decimal.Zero})
		}
		result[i].TotalSales++
		result[i].TotalFinal = result[i].TotalFinal.Add(s.FinalTotal)
	}

	slices.SortFunc(result, func(a, b domain.SalesSourceSummary) int {
		if c := b.TotalFinal.Cmp(a.TotalFinal); c != 0 {
			return c
		}
		return strings.Compare(string(a.Source), string(b.Source))
	})
	return result
}

// TopProducts ranks products by revenue, then quantity (both descending),
// then product id. A limit of zero or less returns every product.
func TopProducts(sales []domain.Sale, limit int) []domain.TopProduct {
	index := make(map[string]int)
	result := make([]domain.TopProduct, 0, 16)
	for _, s := range counted(sales) {
		for _, item := range s.Items {
			i, ok := index[item.ProductID]
			if !ok {
				i = len(result)
				index[item.ProductID] = i
				result = append(result, domain.TopProduct{
					ProductID:     item.ProductID,
					ProductName:   item.ProductName,
					TotalQuantity: decimal.Zero,
					TotalRevenue:  decimal.Zero,
				})
			}
			result[i].TotalQuantity = result[i].TotalQuantity.Add(item.Quantity)
			result[i].TotalRevenue = result[i].TotalRevenue.Add(item.UnitPrice.Mul(item.Quantity))
		}
	}

	slices.SortFunc(result, func(a, b domain.TopProduct) int {
		if c := b.TotalRevenue.Cmp(a.TotalRevenue); c != 0 {
			return c
		}
		if c := b.TotalQuantity.Cmp(a.TotalQuantity); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
