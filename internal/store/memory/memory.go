// Package memory is a mutex-guarded in-memory Repository used by tests and
// by dev mode when no DATABASE_URL is configured. It mirrors the postgres
// semantics, including all-or-nothing checkouts.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"inventario/internal/auth"
	"inventario/internal/domain"
	"inventario/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	entries  []domain.Entry
	sales    []domain.Sale
	users    map[string]domain.User // keyed by username
	sessions map[string]domain.Session
}

func New() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		users:    make(map[string]domain.User),
		sessions: make(map[string]domain.Session),
	}
}

// NewSeeded returns a store with the default admin/seller accounts and a
// small stocked catalog, the state a fresh deployment reaches after
// bootstrap plus a few recorded entries.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{envOr("DEFAULT_ADMIN_USER", "admin"), envOr("DEFAULT_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{envOr("DEFAULT_SELLER_USER", "seller"), envOr("DEFAULT_SELLER_PASSWORD", "seller123"), domain.RoleSeller},
	} {
		hash, err := auth.HashPassword(u.password)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("seed password hash failed")
		}
		s.users[u.username] = domain.User{
			ID:           uuid.NewString(),
			Username:     u.username,
			PasswordHash: hash,
			Role:         u.role,
			CreatedAt:    now,
		}
	}

	seed := []struct {
		code      string
		name      string
		unitCost  float64
		salePrice float64
		stock     float64
	}{
		{"CAF-250", "Cafe Molido 250g", 4.50, 7.90, 40},
		{"AZU-1K", "Azucar 1kg", 1.10, 1.95, 60},
		{"ARR-1K", "Arroz 1kg", 0.90, 1.60, 80},
	}
	for _, p := range seed {
		id := uuid.NewString()
		s.products[id] = domain.Product{
			ID:            id,
			Code:          p.code,
			Name:          p.name,
			UnitCost:      p.unitCost,
			SalePrice:     p.salePrice,
			CurrentStock:  p.stock,
			TotalInvested: p.stock * p.unitCost,
		}
		s.entries = append(s.entries, domain.Entry{
			ID:        uuid.NewString(),
			ProductID: id,
			Quantity:  p.stock,
			UnitCost:  p.unitCost,
			TotalCost: p.stock * p.unitCost,
			Date:      now,
		})
	}
	return s
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.Code == product.Code {
			return nil, store.ErrConflict
		}
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	product.CurrentStock = 0
	product.TotalInvested = 0
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, req domain.ProductUpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[req.ID]
	if !ok {
		return store.ErrNotFound
	}
	if req.Code != nil {
		for id, existing := range s.products {
			if id != req.ID && existing.Code == *req.Code {
				return store.ErrConflict
			}
		}
		p.Code = *req.Code
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.UnitCost != nil {
		p.UnitCost = *req.UnitCost
	}
	if req.SalePrice != nil {
		p.SalePrice = *req.SalePrice
	}
	s.products[req.ID] = p
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.ProductID != id {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	keptSales := s.sales[:0]
	for _, sale := range s.sales {
		if sale.ProductID != id {
			keptSales = append(keptSales, sale)
		}
	}
	s.sales = keptSales
	return nil
}

func (s *Store) ListEntries(_ context.Context) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.Entry, len(s.entries))
	copy(entries, s.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.After(entries[j].Date) })
	return entries, nil
}

func (s *Store) RecordEntry(_ context.Context, entry domain.Entry) (*domain.Entry, error) {
	if entry.Quantity <= 0 || entry.UnitCost <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[entry.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	entry.TotalCost = entry.Quantity * entry.UnitCost

	p.CurrentStock += entry.Quantity
	p.TotalInvested += entry.TotalCost
	if p.CurrentStock > 0 {
		p.UnitCost = p.TotalInvested / p.CurrentStock
	}
	s.products[entry.ProductID] = p
	s.entries = append(s.entries, entry)

	created := entry
	return &created, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, len(s.sales))
	copy(sales, s.sales)
	sort.Slice(sales, func(i, j int) bool { return sales[i].Date.After(sales[j].Date) })
	return sales, nil
}

func (s *Store) CreateCheckout(_ context.Context, checkout domain.Checkout) (*domain.SaleReceipt, error) {
	if len(checkout.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if checkout.TransactionID == "" {
		checkout.TransactionID = uuid.NewString()
	}
	if checkout.Date.IsZero() {
		checkout.Date = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every line against a scratch copy of the stock levels first,
	// so a failing line leaves nothing applied.
	remaining := make(map[string]float64, len(checkout.Items))
	for _, item := range checkout.Items {
		if item.Quantity <= 0 {
			return nil, store.ErrInvalidInput
		}
		p, ok := s.products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if _, seen := remaining[item.ProductID]; !seen {
			remaining[item.ProductID] = p.CurrentStock
		}
		if remaining[item.ProductID] < item.Quantity {
			return nil, fmt.Errorf("product %s: %w", p.Code, store.ErrInsufficientStock)
		}
		if p.SalePrice <= 0 {
			return nil, fmt.Errorf("product %s has non-positive sale price: %w", p.Code, store.ErrInvalidInput)
		}
		remaining[item.ProductID] -= item.Quantity
	}

	receipt := &domain.SaleReceipt{
		TransactionID: checkout.TransactionID,
		Date:          checkout.Date,
		Items:         make([]domain.Sale, 0, len(checkout.Items)),
	}
	for _, item := range checkout.Items {
		p := s.products[item.ProductID]
		sale := domain.Sale{
			ID:            uuid.NewString(),
			ProductID:     item.ProductID,
			ProductName:   p.Name,
			ProductCode:   p.Code,
			Quantity:      item.Quantity,
			UnitPrice:     p.SalePrice,
			TotalRevenue:  item.Quantity * p.SalePrice,
			Date:          checkout.Date,
			TransactionID: checkout.TransactionID,
			SellerID:      checkout.SellerID,
			SellerName:    checkout.SellerName,
		}
		p.CurrentStock -= item.Quantity
		s.products[item.ProductID] = p
		s.sales = append(s.sales, sale)
		receipt.Items = append(receipt.Items, sale)
		receipt.TotalRevenue += sale.TotalRevenue
	}
	return receipt, nil
}

func (s *Store) AdjustPrices(_ context.Context, factor float64) (int64, error) {
	if factor <= 0 {
		return 0, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.products {
		p.SalePrice *= factor
		s.products[id] = p
	}
	return int64(len(s.products)), nil
}

func (s *Store) Summary(_ context.Context) (domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.Summary
	for _, e := range s.entries {
		summary.TotalInvested += e.TotalCost
	}
	for _, sale := range s.sales {
		summary.TotalSold += sale.TotalRevenue
	}
	summary.GrossProfit = summary.TotalSold - summary.TotalInvested
	return summary, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same contract as the postgres ON CONFLICT DO NOTHING insert.
	if _, exists := s.users[user.Username]; exists {
		return nil
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) HasUserWithRole(_ context.Context, role string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.Token]; exists {
		return store.ErrConflict
	}
	s.sessions[session.Token] = session
	return nil
}

func (s *Store) GetUserBySessionToken(_ context.Context, token string, now time.Time) (*domain.SessionUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok || !session.ExpiresAt.After(now) {
		return nil, store.ErrNotFound
	}
	for _, user := range s.users {
		if user.ID == session.UserID {
			return &domain.SessionUser{ID: user.ID, Username: user.Username, Role: user.Role}, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, token)
		}
	}
	return nil
}
