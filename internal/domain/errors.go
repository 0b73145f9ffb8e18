package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type FailureKind string

const (
	KindAuthorizationDenied        FailureKind = "authorization_denied"
	KindEmptyCart                  FailureKind = "empty_cart"
	KindInvalidQuantity            FailureKind = "invalid_quantity"
	KindInvalidPrice               FailureKind = "invalid_price"
	KindUnknownProduct             FailureKind = "unknown_product"
	KindMissingComparisonRange     FailureKind = "missing_comparison_range"
	KindInvalidPromotionDefinition FailureKind = "invalid_promotion_definition"
	KindInvalidRequest             FailureKind = "invalid_request"
)

// Failure is a structured, recoverable engine error naming the kind and the
// offending field.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	if f.Field == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// Is matches any Failure of the same kind, so callers can test with
// errors.Is(err, domain.ErrEmptyCart).
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return t.Kind == f.Kind
}

var (
	ErrAuthorizationDenied        = &Failure{Kind: KindAuthorizationDenied, Message: "authorization denied"}
	ErrEmptyCart                  = &Failure{Kind: KindEmptyCart, Message: "cart is empty"}
	ErrInvalidQuantity            = &Failure{Kind: KindInvalidQuantity, Message: "invalid quantity"}
	ErrInvalidPrice               = &Failure{Kind: KindInvalidPrice, Message: "invalid price"}
	ErrUnknownProduct             = &Failure{Kind: KindUnknownProduct, Message: "unknown product"}
	ErrMissingComparisonRange     = &Failure{Kind: KindMissingComparisonRange, Message: "previous range required for custom period"}
	ErrInvalidPromotionDefinition = &Failure{Kind: KindInvalidPromotionDefinition, Message: "invalid promotion definition"}
	ErrInvalidRequest             = &Failure{Kind: KindInvalidRequest, Message: "invalid request"}
)

func Fail(kind FailureKind, field string, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Prices carry at most MoneyPlaces decimals and quantities at most
// QuantityPlaces, matching the storage columns.
const (
	MoneyPlaces    = 2
	QuantityPlaces = 3
)

// HasMorePlaces reports whether d needs more than places decimals.
func HasMorePlaces(d decimal.Decimal, places int32) bool {
	return !d.Equal(d.Truncate(places))
}

// RoundMoney rounds half away from zero to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
