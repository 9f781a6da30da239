package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/union-data/internal/model"
)

// Query selects one side of one target's book in one currency.
type Query struct {
	Target     model.EntityID
	Collection bool
	Side       model.OrderSide
	Currency   string
	Origin     string
	// Maker restricts the listing to one maker (ownership sells).
	Maker string
}

// Source lists a target's active orders best first.
type Source interface {
	ListOrders(ctx context.Context, q Query, cursor string, size int) ([]model.Order, string, error)
	Currencies(ctx context.Context, q Query) ([]string, error)
}

// SearchConfig bounds a best-order search.
type SearchConfig struct {
	InitialBatch   int
	EscalatedBatch int
	// EscalateAfter is the number of fetches without a valid order before switching to EscalatedBatch.
	EscalateAfter int
	MaxAttempts   int
}

// DefaultSearchConfig returns the production search bounds.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		InitialBatch:   1,
		EscalatedBatch: 10,
		EscalateAfter:  2,
		MaxAttempts:    50,
	}
}

// Searcher scans best-first listings for the first valid order.
type Searcher struct {
	cfg    SearchConfig
	logger *slog.Logger
}

// NewSearcher creates a Searcher. Zero config fields take their defaults.
func NewSearcher(cfg SearchConfig, logger *slog.Logger) *Searcher {
	def := DefaultSearchConfig()
	if cfg.InitialBatch <= 0 {
		cfg.InitialBatch = def.InitialBatch
	}
	if cfg.EscalatedBatch <= 0 {
		cfg.EscalatedBatch = def.EscalatedBatch
	}
	if cfg.EscalateAfter <= 0 {
		cfg.EscalateAfter = def.EscalateAfter
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{cfg: cfg, logger: logger}
}

// FindBest returns the first order in src's listing for q that passes valid.
// found is false when the listing is exhausted or the attempt ceiling is reached.
func (s *Searcher) FindBest(ctx context.Context, src Source, q Query, valid func(model.Order) bool) (model.Order, bool, error) {
	var (
		cursor string
		misses int
	)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		size := s.cfg.InitialBatch
		if misses >= s.cfg.EscalateAfter {
			size = s.cfg.EscalatedBatch
		}

		orders, next, err := src.ListOrders(ctx, q, cursor, size)
		if err != nil {
			return model.Order{}, false, fmt.Errorf("search %s %s orders of %s: %w", q.Currency, q.Side, q.Target, err)
		}

		for _, o := range orders {
			if valid(o) {
				return o, true, nil
			}
		}

		if next == "" {
			return model.Order{}, false, nil
		}
		misses++
		cursor = next
	}

	s.logger.Warn("best order search gave up",
		"target", q.Target.String(),
		"side", q.Side,
		"currency", q.Currency,
		"attempts", s.cfg.MaxAttempts,
	)
	return model.Order{}, false, nil
}
