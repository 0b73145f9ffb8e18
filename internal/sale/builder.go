// Package sale turns a validated cart into an immutable Sale aggregate.
package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scoopos/backend/internal/domain"
	"scoopos/backend/internal/permission"
	"scoopos/backend/internal/promotion"
	"scoopos/backend/internal/store"
)

const manualDiscountName = "Manual discount"

type Catalog interface {
	LoadProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Sequencer hands out sale ids and timestamps. Implementations must never
// return the same id twice.
type Sequencer interface {
	NextSaleID(ctx context.Context) (int64, error)
	Now() time.Time
}

type Request struct {
	Lines          []domain.CartLine
	PaymentMethod  domain.PaymentMethod
	Promotions     []domain.Promotion
	Actor          domain.User
	Source         domain.SaleSource
	ManualDiscount decimal.Decimal
	Note           string
}

// Builder constructs sales atomically: every check runs before an id is
// taken, so a failed build leaves no trace. Callers serialize Build per
// register; id uniqueness across registers is the Sequencer's job.
type Builder struct {
	catalog Catalog
	seq     Sequencer
}

func NewBuilder(catalog Catalog, seq Sequencer) *Builder {
	return &Builder{catalog: catalog, seq: seq}
}

// Build validates the request, applies promotions and returns the finished
// sale with its id and timestamp.
func (b *Builder) Build(ctx context.Context, req Request) (domain.Sale, error) {
	sale, err := b.compose(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}

	id, err := b.seq.NextSaleID(ctx)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("assign sale id: %w", err)
	}
	sale.ID = id
	sale.CreatedAt = b.seq.Now().UTC()
	return sale, nil
}

// Quote runs the same pipeline as Build without consuming an id.
func (b *Builder) Quote(ctx context.Context, req Request) (domain.Sale, error) {
	return b.compose(ctx, req)
}

func (b *Builder) compose(ctx context.Context, req Request) (domain.Sale, error) {
	if err := permission.Require(req.Actor, domain.PermPOSAccess); err != nil {
		return domain.Sale{}, err
	}
	manual := domain.RoundMoney(req.ManualDiscount)
	if manual.IsNegative() {
		return domain.Sale{}, domain.Fail(domain.KindInvalidRequest, "manual_discount", "manual discount cannot be negative")
	}
	if manual.IsPositive() || overridesPrice(req.Lines) {
		if err := permission.Require(req.Actor, domain.PermPOSDiscount); err != nil {
			return domain.Sale{}, err
		}
	}

	if len(req.Lines) == 0 {
		return domain.Sale{}, domain.ErrEmptyCart
	}

	if strings.TrimSpace(req.PaymentMethod.ID) == "" || !req.PaymentMethod.Active {
		return domain.Sale{}, domain.Fail(domain.KindInvalidRequest, "payment_method_id", "payment method unavailable")
	}

	source := req.Source
	if source == "" {
		source = domain.SourceLocal
	}
	if source != domain.SourceLocal && source != domain.SourceOnline {
		return domain.Sale{}, domain.Fail(domain.KindInvalidRequest, "source", "source must be LOCAL or ONLINE")
	}

	items, priced, err := b.snapshotItems(ctx, req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}

	applied := promotion.Match(priced, req.Promotions)
	promos := make([]domain.SalePromotion, 0, len(applied)+1)
	discount := decimal.Zero
	for _, a := range applied {
		promos = append(promos, domain.SalePromotion{
			PromotionID:    a.PromotionID,
			PromotionName:  a.Name,
			DiscountAmount: a.Discount,
		})
		discount = discount.Add(a.Discount)
	}

	if manual.IsPositive() {
		if room := total.Sub(discount); manual.GreaterThan(room) {
			manual = room
		}
		if manual.IsPositive() {
			promos = append(promos, domain.SalePromotion{
				PromotionName:  manualDiscountName,
				DiscountAmount: manual,
			})
			discount = discount.Add(manual)
		}
	}

	final := total.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return domain.Sale{
		Total:             total,
		DiscountTotal:     discount,
		FinalTotal:        final,
		PaymentMethodID:   req.PaymentMethod.ID,
		PaymentMethodName: req.PaymentMethod.Name,
		CreatedBy:         req.Actor.Username,
		Source:            source,
		Status:            domain.SaleStatusCompleted,
		Note:              strings.TrimSpace(req.Note),
		Items:             items,
		Promotions:        promos,
	}, nil
}

// overridesPrice reports whether any line carries its own unit price instead
// of the catalog one.
func overridesPrice(lines []domain.CartLine) bool {
	for _, line := range lines {
		if line.UnitPrice != nil {
			return true
		}
	}
	return false
}

// snapshotItems validates every line and copies product name, price and type
// into the sale. The second result carries the lines with prices resolved,
// as the matcher expects them.
func (b *Builder) snapshotItems(ctx context.Context, lines []domain.CartLine) ([]domain.SaleItem, []domain.CartLine, error) {
	loaded := make(map[string]*domain.Product, len(lines))
	items := make([]domain.SaleItem, 0, len(lines))
	priced := make([]domain.CartLine, 0, len(lines))

	for i, line := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, nil, domain.Fail(domain.KindUnknownProduct, field+".product_id", "product id is required")
		}

		product, ok := loaded[productID]
		if !ok {
			p, err := b.catalog.LoadProduct(ctx, productID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, nil, domain.Fail(domain.KindUnknownProduct, field+".product_id", "product %s not found", productID)
				}
				return nil, nil, err
			}
			product = p
			loaded[productID] = p
		}
		if !product.Active {
			return nil, nil, domain.Fail(domain.KindUnknownProduct, field+".product_id", "product %s is not available", productID)
		}

		if !line.Quantity.IsPositive() {
			return nil, nil, domain.Fail(domain.KindInvalidQuantity, field+".quantity", "quantity must be positive")
		}
		if product.Type != domain.ProductTypeWeight && !line.Quantity.Equal(line.Quantity.Truncate(0)) {
			return nil, nil, domain.Fail(domain.KindInvalidQuantity, field+".quantity", "product %s is sold by unit", productID)
		}
		if domain.HasMorePlaces(line.Quantity, domain.QuantityPlaces) {
			return nil, nil, domain.Fail(domain.KindInvalidQuantity, field+".quantity", "quantity allows at most %d decimals", domain.QuantityPlaces)
		}

		price := product.UnitPrice
		if line.UnitPrice != nil {
			if line.UnitPrice.IsNegative() {
				return nil, nil, domain.Fail(domain.KindInvalidPrice, field+".unit_price", "unit price cannot be negative")
			}
			if domain.HasMorePlaces(*line.UnitPrice, domain.MoneyPlaces) {
				return nil, nil, domain.Fail(domain.KindInvalidPrice, field+".unit_price", "unit price allows at most %d decimals", domain.MoneyPlaces)
			}
			price = *line.UnitPrice
		}

		productType := product.Type
		if productType == "" {
			productType = domain.ProductTypeUnit
		}
		items = append(items, domain.SaleItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			ProductType: productType,
			UnitPrice:   price,
			Quantity:    line.Quantity,
			Subtotal:    price.Mul(line.Quantity),
		})
		captured := price
		priced = append(priced, domain.CartLine{ProductID: product.ID, Quantity: line.Quantity, UnitPrice: &captured})
	}

	return items, priced, nil
}
