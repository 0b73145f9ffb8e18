package store

import (
	"context"
	"errors"
	"time"

	"scoopos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
)

// Repository owns every persisted entity. NextSaleID must hand out unique,
// increasing ids even under concurrent callers.
type Repository interface {
	NextSaleID(ctx context.Context) (int64, error)
	Now() time.Time

	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	LoadProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListPromotions(ctx context.Context) ([]domain.Promotion, error)
	LoadActivePromotions(ctx context.Context) ([]domain.Promotion, error)
	CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	SetPromotionActive(ctx context.Context, id string, active bool) (*domain.Promotion, error)

	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error)

	// PersistSale stores the sale and decrements stock of stock-controlled
	// products in one step. Nothing is written when stock runs short.
	PersistSale(ctx context.Context, sale domain.Sale) error
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	QuerySales(ctx context.Context, r domain.DateRange) ([]domain.Sale, error)
	// CancelSale flags a completed sale as cancelled and restocks its items.
	CancelSale(ctx context.Context, id int64, by string, reason string, at time.Time) (*domain.Sale, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
