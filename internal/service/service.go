// Package service orchestrates the inventory ledger. All stock mutation
// funnels through the repository's atomic operations; this layer adds
// validation, actor checks and summary-cache bookkeeping.
package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"inventario/internal/cache"
	"inventario/internal/domain"
	"inventario/internal/store"
)

// ErrForbidden means the resolved user lacks permission for the action,
// distinct from not being authenticated at all.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.SessionUser) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.SessionUser, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.SessionUser)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	summaries  cache.SummaryCache
	summaryTTL time.Duration
}

func New(repo store.Repository, summaries cache.SummaryCache, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = 30 * time.Second
	}
	return &Service{repo: repo, summaries: summaries, summaryTTL: summaryTTL}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" || req.UnitCost <= 0 || req.SalePrice <= 0 {
		return nil, store.ErrInvalidInput
	}

	return s.repo.CreateProduct(ctx, domain.Product{
		Code:      req.Code,
		Name:      req.Name,
		UnitCost:  req.UnitCost,
		SalePrice: req.SalePrice,
	})
}

func (s *Service) UpdateProduct(ctx context.Context, req domain.ProductUpdateRequest) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(req.ID) == "" {
		return store.ErrInvalidInput
	}
	if req.UnitCost != nil && *req.UnitCost <= 0 {
		return store.ErrInvalidInput
	}
	if req.SalePrice != nil && *req.SalePrice <= 0 {
		return store.ErrInvalidInput
	}
	return s.repo.UpdateProduct(ctx, req)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx)
	return nil
}

func (s *Service) ListEntries(ctx context.Context) ([]domain.Entry, error) {
	return s.repo.ListEntries(ctx)
}

func (s *Service) RecordEntry(ctx context.Context, req domain.EntryCreateRequest) (*domain.Entry, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ProductID) == "" || req.Quantity <= 0 || req.UnitCost <= 0 {
		return nil, store.ErrInvalidInput
	}

	entry, err := s.repo.RecordEntry(ctx, domain.Entry{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx)
	return entry, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// SubmitSale runs one checkout. The legacy single-item body and the batch
// cart body converge here; both get the same locking and atomicity.
func (s *Service) SubmitSale(ctx context.Context, req domain.SaleSubmitRequest) (*domain.SaleReceipt, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSeller) {
		return nil, ErrForbidden
	}

	items := req.Items
	if len(items) == 0 && req.ProductID != "" {
		items = []domain.SaleItemInput{{ProductID: req.ProductID, Quantity: req.Quantity}}
	}
	if len(items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity <= 0 || math.IsInf(item.Quantity, 0) || math.IsNaN(item.Quantity) {
			return nil, store.ErrInvalidInput
		}
	}

	receipt, err := s.repo.CreateCheckout(ctx, domain.Checkout{
		TransactionID: uuid.NewString(),
		Date:          time.Now().UTC(),
		SellerID:      actor.ID,
		SellerName:    actor.Username,
		Items:         items,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx)
	return receipt, nil
}

func (s *Service) AdjustPrices(ctx context.Context, percent float64) (domain.PriceAdjustResponse, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.PriceAdjustResponse{}, err
	}
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return domain.PriceAdjustResponse{}, store.ErrInvalidInput
	}
	factor := 1 + percent/100
	if factor <= 0 {
		return domain.PriceAdjustResponse{}, store.ErrInvalidInput
	}

	adjusted, err := s.repo.AdjustPrices(ctx, factor)
	if err != nil {
		return domain.PriceAdjustResponse{}, err
	}
	return domain.PriceAdjustResponse{OK: true, Factor: factor, Adjusted: adjusted}, nil
}

func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Summary{}, err
	}

	if cached, ok, err := s.summaries.Get(ctx); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("summary cache read failed")
	}

	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	if err := s.summaries.Set(ctx, &summary, s.summaryTTL); err != nil {
		log.Warn().Err(err).Msg("summary cache write failed")
	}
	return summary, nil
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if err := s.summaries.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("summary cache invalidation failed")
	}
}
