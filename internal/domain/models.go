package domain

import "time"

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

type Product struct {
	ID            string  `json:"id"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	UnitCost      float64 `json:"unitCost"`
	SalePrice     float64 `json:"salePrice"`
	CurrentStock  float64 `json:"currentStock"`
	TotalInvested float64 `json:"totalInvested"`
}

type ProductCreateRequest struct {
	Code      string  `json:"code" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	UnitCost  float64 `json:"unitCost" validate:"gt=0"`
	SalePrice float64 `json:"salePrice" validate:"gt=0"`
}

type ProductUpdateRequest struct {
	ID        string   `json:"id" validate:"required"`
	Code      *string  `json:"code,omitempty"`
	Name      *string  `json:"name,omitempty"`
	UnitCost  *float64 `json:"unitCost,omitempty"`
	SalePrice *float64 `json:"salePrice,omitempty"`
}

// Entry is an immutable purchase event. Recording one increases the product's
// stock and cost basis and recomputes its weighted average unit cost.
type Entry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Quantity  float64   `json:"quantity"`
	UnitCost  float64   `json:"unitCost"`
	TotalCost float64   `json:"totalCost"`
	Date      time.Time `json:"date"`
}

type EntryCreateRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
	UnitCost  float64 `json:"unitCost" validate:"gt=0"`
}

// Sale is one line of a checkout. Lines created by the same checkout share a
// TransactionID and timestamp.
type Sale struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	ProductName   string    `json:"productName"`
	ProductCode   string    `json:"productCode"`
	Quantity      float64   `json:"quantity"`
	UnitPrice     float64   `json:"unitPrice"`
	TotalRevenue  float64   `json:"totalRevenue"`
	Date          time.Time `json:"date"`
	TransactionID string    `json:"transactionId"`
	SellerID      string    `json:"sellerId,omitempty"`
	SellerName    string    `json:"sellerName,omitempty"`
}

type SaleItemInput struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
}

// SaleSubmitRequest accepts either the batch cart shape ({items: [...]}) or the
// legacy single-item shape (productId/quantity at the top level). Both feed the
// same transaction engine.
type SaleSubmitRequest struct {
	Items     []SaleItemInput `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	ProductID string          `json:"productId,omitempty"`
	Quantity  float64         `json:"quantity,omitempty"`
}

// Checkout is the unit of work handed to the store: all lines commit together
// or not at all.
type Checkout struct {
	TransactionID string
	Date          time.Time
	SellerID      string
	SellerName    string
	Items         []SaleItemInput
}

type SaleReceipt struct {
	TransactionID string    `json:"transactionId"`
	Date          time.Time `json:"date"`
	TotalRevenue  float64   `json:"totalRevenue"`
	Items         []Sale    `json:"items"`
}

type PriceAdjustRequest struct {
	Percent *float64 `json:"percent" validate:"required"`
}

type PriceAdjustResponse struct {
	OK       bool    `json:"ok"`
	Factor   float64 `json:"factor"`
	Adjusted int64   `json:"adjusted"`
}

type Summary struct {
	TotalInvested float64 `json:"totalInvested"`
	TotalSold     float64 `json:"totalSold"`
	GrossProfit   float64 `json:"grossProfit"`
}

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// SessionUser is the projection of a user safe to hand to handlers and clients.
type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *SessionUser `json:"user,omitempty"`
}
