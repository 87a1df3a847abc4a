package store

import (
	"context"
	"errors"
	"time"

	"inventario/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	// ErrTransient marks lock-wait timeouts, deadlocks and serialization
	// failures. Callers may retry the whole operation.
	ErrTransient = errors.New("transient storage failure")
)

// Repository is the single storage boundary. All stock and cost-basis
// mutation goes through RecordEntry and CreateCheckout; nothing else is
// allowed to touch current_stock or total_invested.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, req domain.ProductUpdateRequest) error
	DeleteProduct(ctx context.Context, id string) error

	ListEntries(ctx context.Context) ([]domain.Entry, error)
	RecordEntry(ctx context.Context, entry domain.Entry) (*domain.Entry, error)

	ListSales(ctx context.Context) ([]domain.Sale, error)
	CreateCheckout(ctx context.Context, checkout domain.Checkout) (*domain.SaleReceipt, error)

	AdjustPrices(ctx context.Context, factor float64) (int64, error)
	Summary(ctx context.Context) (domain.Summary, error)

	CreateUser(ctx context.Context, user domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	HasUserWithRole(ctx context.Context, role string) (bool, error)

	CreateSession(ctx context.Context, session domain.Session) error
	// GetUserBySessionToken resolves a token to its user in a single lookup
	// that also checks expiry, so there is no window between the two.
	GetUserBySessionToken(ctx context.Context, token string, now time.Time) (*domain.SessionUser, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}
