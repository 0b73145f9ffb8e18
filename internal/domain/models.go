package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleCashier Role = "CASHIER"
)

// Permission is a capability token of the form <domain>:<action>.
type Permission string

const (
	PermPOSAccess      Permission = "pos:access"
	PermPOSDiscount    Permission = "pos:discount"
	PermProductsView   Permission = "products:view"
	PermProductsEdit   Permission = "products:edit"
	PermPromotionsView Permission = "promotions:view"
	PermPromotionsEdit Permission = "promotions:edit"
	PermSalesView      Permission = "sales:view"
	PermSalesCancel    Permission = "sales:cancel"
	PermReportsView    Permission = "reports:view"
	PermUsersManage    Permission = "users:manage"
	PermAuditView      Permission = "audit:view"
)

// User is the resolved identity every gated operation is evaluated against.
// A nil Permissions slice means the role defaults apply; a non-nil slice
// (even an empty one) is the authoritative effective set.
type User struct {
	Username    string       `json:"username"`
	Role        Role         `json:"role"`
	Active      bool         `json:"active"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
}

type UserAccount struct {
	User
	Password string `json:"-"`
}

type UserCreateRequest struct {
	Username    string       `json:"username"`
	Password    string       `json:"password"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions,omitempty"`
}

type UserUpdateRequest struct {
	Active           *bool         `json:"active,omitempty"`
	Permissions      *[]Permission `json:"permissions,omitempty"`
	ResetPermissions bool          `json:"reset_permissions,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	ExpiresAt   string       `json:"expires_at"`
}

type ProductType string

const (
	ProductTypeUnit   ProductType = "UNIT"
	ProductTypeWeight ProductType = "WEIGHT"
)

type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category,omitempty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Stock           decimal.Decimal `json:"stock"`
	StockControlled bool            `json:"stock_controlled"`
	Type            ProductType     `json:"type"`
	Active          bool            `json:"active"`
}

type ProductCreateRequest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Stock           decimal.Decimal `json:"stock"`
	StockControlled bool            `json:"stock_controlled"`
	Type            ProductType     `json:"type"`
}

type ProductUpdateRequest struct {
	Name            *string          `json:"name,omitempty"`
	Category        *string          `json:"category,omitempty"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	Stock           *decimal.Decimal `json:"stock,omitempty"`
	StockControlled *bool            `json:"stock_controlled,omitempty"`
	Active          *bool            `json:"active,omitempty"`
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// PromotionProduct is an eligibility rule: the promotion triggers for
// ProductID once the cart holds at least RequiredQty of it.
type PromotionProduct struct {
	ProductID   string          `json:"product_id"`
	RequiredQty decimal.Decimal `json:"required_qty"`
}

type Promotion struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	DiscountType  DiscountType       `json:"discount_type"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	Active        bool               `json:"active"`
	Products      []PromotionProduct `json:"products"`
	CreatedAt     time.Time          `json:"created_at"`
}

type PromotionCreateRequest struct {
	Name          string             `json:"name"`
	DiscountType  DiscountType       `json:"discount_type"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	Products      []PromotionProduct `json:"products"`
}

type PromotionToggleRequest struct {
	Active bool `json:"active"`
}

// AppliedPromotion is the matcher's result for one promotion against one cart.
type AppliedPromotion struct {
	PromotionID  string                 `json:"promotion_id"`
	Name         string                 `json:"name"`
	DiscountType DiscountType           `json:"discount_type"`
	Discount     decimal.Decimal        `json:"discount"`
	Lines        []AppliedPromotionLine `json:"lines"`
}

type AppliedPromotionLine struct {
	ProductID   string          `json:"product_id"`
	Occurrences int64           `json:"occurrences"`
	Discount    decimal.Decimal `json:"discount"`
}

type PaymentMethod struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// CartLine is checkout input. A nil UnitPrice means the catalog price is
// captured at build time.
type CartLine struct {
	ProductID string           `json:"product_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type SaleSource string

const (
	SourceLocal  SaleSource = "LOCAL"
	SourceOnline SaleSource = "ONLINE"
)

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "COMPLETED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

type Sale struct {
	ID                int64           `json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	Total             decimal.Decimal `json:"total"`
	DiscountTotal     decimal.Decimal `json:"discount_total"`
	FinalTotal        decimal.Decimal `json:"final_total"`
	PaymentMethodID   string          `json:"payment_method_id"`
	PaymentMethodName string          `json:"payment_method_name"`
	CreatedBy         string          `json:"created_by,omitempty"`
	Source            SaleSource      `json:"source"`
	Status            SaleStatus      `json:"status"`
	Note              string          `json:"note,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy       string          `json:"cancelled_by,omitempty"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
	Items             []SaleItem      `json:"items"`
	Promotions        []SalePromotion `json:"promotions"`
}

func (s Sale) Cancelled() bool {
	return s.Status == SaleStatusCancelled
}

type SaleItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductType ProductType     `json:"product_type"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// SalePromotion with an empty PromotionID records a manual discount.
type SalePromotion struct {
	PromotionID    string          `json:"promotion_id,omitempty"`
	PromotionName  string          `json:"promotion_name"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type CheckoutRequest struct {
	PaymentMethodID string          `json:"payment_method_id"`
	Source          SaleSource      `json:"source,omitempty"`
	Lines           []CartLine      `json:"lines"`
	ManualDiscount  decimal.Decimal `json:"manual_discount"`
	Note            string          `json:"note,omitempty"`
}

type CancelSaleRequest struct {
	Reason string `json:"reason"`
}

// DateRange is the half-open interval [From, To).
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

func (r DateRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

type SalesSummary struct {
	TotalSales    int             `json:"total_sales"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalFinal    decimal.Decimal `json:"total_final"`
}

type PaymentMethodSummary struct {
	PaymentMethodID   string          `json:"payment_method_id"`
	PaymentMethodName string          `json:"payment_method_name"`
	TotalSales        int             `json:"total_sales"`
	TotalFinal        decimal.Decimal `json:"total_final"`
}

type SalesSourceSummary struct {
	Source     SaleSource      `json:"source"`
	TotalSales int             `json:"total_sales"`
	TotalFinal decimal.Decimal `json:"total_final"`
}

type TopProduct struct {
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}

type PeriodType string

const (
	PeriodDay       PeriodType = "day"
	PeriodWeek      PeriodType = "week"
	PeriodFortnight PeriodType = "fortnight"
	PeriodMonth     PeriodType = "month"
	PeriodCustom    PeriodType = "custom"
)

type ComparisonMetrics struct {
	TotalFinal    decimal.Decimal `json:"total_final"`
	TotalSales    int             `json:"total_sales"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
}

type SalesComparison struct {
	Period          PeriodType        `json:"period"`
	Current         DateRange         `json:"current_range"`
	Previous        DateRange         `json:"previous_range"`
	CurrentMetrics  ComparisonMetrics `json:"current"`
	PreviousMetrics ComparisonMetrics `json:"previous"`
	Deltas          ComparisonMetrics `json:"deltas"`
}

type SalesReport struct {
	Range          DateRange              `json:"range"`
	Summary        SalesSummary           `json:"summary"`
	PaymentMethods []PaymentMethodSummary `json:"payment_methods"`
	Sources        []SalesSourceSummary   `json:"sources"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     Role      `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
