package cache

import (
	"context"
	"time"

	"inventario/internal/domain"
)

// SummaryCache holds the aggregated summary for a short TTL. Session state is
// never cached; this is read-side relief for the reporting page only.
type SummaryCache interface {
	Get(ctx context.Context) (*domain.Summary, bool, error)
	Set(ctx context.Context, summary *domain.Summary, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(context.Context) (*domain.Summary, bool, error) { return nil, false, nil }

func (NoopSummaryCache) Set(context.Context, *domain.Summary, time.Duration) error { return nil }

func (NoopSummaryCache) Invalidate(context.Context) error { return nil }
