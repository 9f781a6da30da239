package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/union-data/internal/bus"
	"github.com/rickgao/union-data/internal/dedup"
	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/order"
)

// Publisher delivers change events.
type Publisher interface {
	Publish(ctx context.Context, ev bus.Event) error
}

// ReasonUnpublished marks an aggregate whose stored transition was not announced.
const ReasonUnpublished = "event not published"

// Marker flags an aggregate for out-of-band reconciliation.
type Marker interface {
	Mark(ctx context.Context, id model.AggregateID, reason string) error
}

// Config tunes the engine.
type Config struct {
	// MaxAttempts caps the compare-and-swap loop of one update.
	MaxAttempts int
	// BidCurrencies restricts which currencies may supply the overall best bid per chain.
	// A chain without an entry allows every currency.
	BidCurrencies map[model.Blockchain][]string
	// Origins lists the marketplace origins tracked separately per chain.
	Origins map[model.Blockchain][]string
	// OrderMemory bounds how many order ids keep their newest update time.
	OrderMemory int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, OrderMemory: 100000}
}

// Deps are the engine's collaborators. Store is required.
type Deps struct {
	Store      Store
	Publisher  Publisher
	Marker     Marker
	Comparator *order.Comparator
	Validator  *order.Validator
	Searcher   *order.Searcher
	Sources    map[model.Blockchain]order.Source
}

// Stats counts engine outcomes.
type Stats struct {
	Saved     int64
	Deleted   int64
	Unchanged int64
	Conflicts int64
	Published   int64
	Republished int64
	Invalid     int64
	Stale       int64
}

// Engine applies order, pool, activity and rate events to aggregates.
type Engine struct {
	store     Store
	publisher Publisher
	marker    Marker
	cmp       *order.Comparator
	validator *order.Validator
	searcher  *order.Searcher
	sources   map[model.Blockchain]order.Source
	orders    *dedup.Watermarks
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	saved       atomic.Int64
	deleted     atomic.Int64
	unchanged   atomic.Int64
	conflicts   atomic.Int64
	published   atomic.Int64
	republished atomic.Int64
	invalid     atomic.Int64
	stale       atomic.Int64
}

// NewEngine creates an Engine.
func NewEngine(d Deps, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.OrderMemory <= 0 {
		cfg.OrderMemory = DefaultConfig().OrderMemory
	}
	if logger == nil {
		logger = slog.Default()
	}
	if d.Comparator == nil {
		d.Comparator = order.NewComparator(nil)
	}
	if d.Validator == nil {
		d.Validator = order.NewValidator()
	}
	if d.Searcher == nil {
		d.Searcher = order.NewSearcher(order.DefaultSearchConfig(), logger)
	}
	sources := make(map[model.Blockchain]order.Source, len(d.Sources))
	for k, v := range d.Sources {
		sources[k] = v
	}
	return &Engine{
		store:     d.Store,
		publisher: d.Publisher,
		marker:    d.Marker,
		cmp:       d.Comparator,
		validator: d.Validator,
		searcher:  d.Searcher,
		sources:   sources,
		orders:    dedup.NewWatermarks(cfg.OrderMemory),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Stats returns counters since start.
func (e *Engine) Stats() Stats {
	return Stats{
		Saved:       e.saved.Load(),
		Deleted:     e.deleted.Load(),
		Unchanged:   e.unchanged.Load(),
		Conflicts:   e.conflicts.Load(),
		Published:   e.published.Load(),
		Republished: e.republished.Load(),
		Invalid:     e.invalid.Load(),
		Stale:       e.stale.Load(),
	}
}

// update runs the compare-and-swap loop for one aggregate.
func (e *Engine) update(ctx context.Context, id model.AggregateID, apply func(*model.Aggregate) error) error {
	return e.run(ctx, id, apply, false)
}

// run is update; with republish set, a result equal to the stored state announces
// the stored state again under its original event id.
func (e *Engine) run(ctx context.Context, id model.AggregateID, apply func(*model.Aggregate) error, republish bool) error {
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		current, err := e.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}

		base := current
		if base == nil {
			base = model.NewAggregate(id)
		}
		next := base.Clone()
		clearUSD(next)
		if err := apply(next); err != nil {
			return err
		}
		e.derive(ctx, next)

		if next.IsEmpty() {
			if current == nil {
				e.unchanged.Add(1)
				if republish {
					e.republished.Add(1)
					return e.publish(ctx, bus.NewDeleteEvent(id, 0, e.now()))
				}
				return nil
			}
			err := e.store.Delete(ctx, id, current.Version)
			if errors.Is(err, ErrVersionConflict) {
				e.conflicts.Add(1)
				e.logger.Debug("aggregate delete conflict, retrying", "id", id.String(), "attempt", attempt)
				continue
			}
			if err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			e.deleted.Add(1)
			return e.publish(ctx, bus.NewDeleteEvent(id, current.Version, e.now()))
		}

		if next.ContentEqual(base) {
			e.unchanged.Add(1)
			if republish {
				e.republished.Add(1)
				return e.emit(ctx, current)
			}
			return nil
		}

		next.LastUpdatedAt = e.now().UTC()
		saved, err := e.store.Save(ctx, next)
		if errors.Is(err, ErrVersionConflict) {
			e.conflicts.Add(1)
			e.logger.Debug("aggregate save conflict, retrying", "id", id.String(), "attempt", attempt)
			continue
		}
		if err != nil {
			return fmt.Errorf("save %s: %w", id, err)
		}
		e.saved.Add(1)
		return e.emit(ctx, saved)
	}

	return fmt.Errorf("%w: %s after %d attempts", ErrSustainedConflict, id, e.cfg.MaxAttempts)
}

// emit validates the stored view and publishes it, or flags it for reconciliation.
func (e *Engine) emit(ctx context.Context, saved *model.Aggregate) error {
	if err := e.Validate(ctx, saved); err != nil {
		e.invalid.Add(1)
		e.logger.Error("aggregate failed validation, not publishing",
			"id", saved.ID.String(),
			"version", saved.Version,
			"error", err,
		)
		e.mark(ctx, saved.ID, err.Error())
		return nil
	}
	return e.publish(ctx, bus.NewUpdateEvent(saved, e.now()))
}

func (e *Engine) publish(ctx context.Context, ev bus.Event) error {
	if e.publisher == nil {
		return nil
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		// the transition is stored; the sweep announces it again
		e.mark(ctx, model.AggregateID{Kind: ev.Kind, ID: ev.EntityID}, ReasonUnpublished)
		return fmt.Errorf("publish %s %s: %w", ev.Type, ev.EntityID, err)
	}
	e.published.Add(1)
	return nil
}

func (e *Engine) mark(ctx context.Context, id model.AggregateID, reason string) {
	if e.marker == nil {
		return
	}
	if err := e.marker.Mark(ctx, id, reason); err != nil {
		e.logger.Error("failed to mark aggregate for reconciliation", "id", id.String(), "error", err)
	}
}

// Get returns the stored aggregate, or nil.
func (e *Engine) Get(ctx context.Context, id model.AggregateID) (*model.Aggregate, error) {
	return e.store.Get(ctx, id)
}
