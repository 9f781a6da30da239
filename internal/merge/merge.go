// Package merge turns N independently paginated shard listings into one globally
// ordered, cursor-paginated stream.
//
// Each call fans out to every selected, non-completed shard, merges the returned
// pages by (time, id) in the requested direction and truncates the result. No
// entity is emitted past the last entity of a shard that still has more data, so
// successive pages stay ordered. Shard progress is carried in a merged cursor:
// a fully consumed shard adopts its next cursor, a partially consumed one keeps its
// previous cursor and records how many entities of that page were already emitted.
package merge

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/union-data/internal/cursor"
	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/shard"
)

// Config bounds a merge engine.
type Config struct {
	DefaultSize  int
	MaxSize      int
	ShardTimeout time.Duration
	// StuckRetries is how many extra fetches a shard gets within one call while it
	// returns empty pages with a non-null cursor.
	StuckRetries int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSize:  50,
		MaxSize:      1000,
		ShardTimeout: 10 * time.Second,
		StuckRetries: 3,
	}
}

// Request selects one page.
type Request struct {
	Cursor string
	Size   int
	Sort   model.SortOrder
	// Shards restricts the fan-out; empty means every registered shard.
	Shards []string
}

// Result is one merged page. Cursor is empty at the end of the stream.
type Result[T model.Entity] struct {
	Entities []T
	Cursor   string
}

// Engine merges the shards of one registry.
type Engine[T model.Entity] struct {
	registry *shard.Registry[T]
	cfg      Config
	logger   *slog.Logger
}

// New creates an Engine. Zero config fields take their defaults.
func New[T model.Entity](registry *shard.Registry[T], cfg Config, logger *slog.Logger) *Engine[T] {
	def := DefaultConfig()
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = def.DefaultSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.ShardTimeout <= 0 {
		cfg.ShardTimeout = def.ShardTimeout
	}
	if cfg.StuckRetries < 0 {
		cfg.StuckRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine[T]{registry: registry, cfg: cfg, logger: logger}
}

// fetched is what one shard contributed to a page.
type fetched[T model.Entity] struct {
	id     string
	failed bool
	items  []T
	next   string

	// base and baseSkip reproduce items when re-fetched.
	base     string
	baseSkip int

	// stuck is set when the shard echoed the same cursor with no items for the whole budget.
	stuck bool
}

// Page returns the next merged page. A malformed cursor yields *cursor.MalformedCursorError.
// Shard failures never fail the page; the shard is retried on the next call.
func (e *Engine[T]) Page(ctx context.Context, req Request) (Result[T], error) {
	state, err := cursor.Decode(req.Cursor)
	if err != nil {
		return Result[T]{}, err
	}

	size := req.Size
	if size <= 0 {
		size = e.cfg.DefaultSize
	}
	if size > e.cfg.MaxSize {
		size = e.cfg.MaxSize
	}
	sortOrder := req.Sort
	if sortOrder == "" {
		sortOrder = model.SortDesc
	}

	selected := e.registry.Select(req.Shards)
	var active []string
	for _, id := range selected {
		if !state[id].Completed {
			active = append(active, id)
		}
	}

	results := make([]fetched[T], len(active))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range active {
		g.Go(func() error {
			client, _ := e.registry.Get(id)
			results[i] = e.fetch(gctx, client, state[id], size, sortOrder)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result[T]{}, err
	}

	entities, consumed := mergePages(results, size, sortOrder)

	next := state.Clone()
	for i, r := range results {
		if r.failed {
			continue
		}
		next[r.id] = advance(r, consumed[i])
		if r.stuck && next[r.id].Completed {
			e.logger.Warn("shard returned empty pages with an unchanged cursor, treating as exhausted",
				"shard", r.id,
				"cursor", r.base,
				"attempts", e.cfg.StuckRetries+1,
			)
		}
	}

	res := Result[T]{Entities: entities}
	if !next.AllCompleted(selected) {
		res.Cursor = cursor.Encode(next)
	}
	return res, nil
}

// fetch queries one shard, re-querying empty pages within the stuck budget.
func (e *Engine[T]) fetch(ctx context.Context, client shard.Client[T], st cursor.ShardState, size int, sortOrder model.SortOrder) fetched[T] {
	r := fetched[T]{id: client.ID(), base: st.Cursor, baseSkip: st.Skip}
	echoed := 0

	for attempt := 0; attempt <= e.cfg.StuckRetries; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, e.cfg.ShardTimeout)
		page, err := client.List(sctx, r.base, size+r.baseSkip, sortOrder)
		cancel()
		if err != nil {
			if attempt == 0 {
				e.logger.Warn("shard page failed",
					"shard", r.id,
					"cursor", r.base,
					"error", err,
				)
				r.failed = true
				return r
			}
			// Keep what the earlier empty pages established.
			e.logger.Debug("shard re-query failed", "shard", r.id, "error", err)
			break
		}

		items := page.Items
		if r.baseSkip > 0 {
			if r.baseSkip >= len(items) {
				items = nil
			} else {
				items = items[r.baseSkip:]
			}
		}
		r.items = items
		r.next = page.Next

		if len(items) > 0 || page.Next == "" {
			return r
		}

		if page.Next == r.base {
			echoed++
		}
		if attempt == e.cfg.StuckRetries {
			break
		}
		// Empty page with a cursor: move on to it within this call.
		if page.Next != r.base {
			r.base, r.baseSkip = page.Next, 0
			r.items, r.next = nil, page.Next
		}
	}

	r.stuck = echoed == e.cfg.StuckRetries+1
	return r
}

// mergePages interleaves the fetched pages and reports how many entities each contributed.
func mergePages[T model.Entity](results []fetched[T], size int, sortOrder model.SortOrder) ([]T, []int) {
	cmp := func(a, b model.SortKey) int {
		if sortOrder == model.SortDesc {
			return b.Compare(a)
		}
		return a.Compare(b)
	}

	// A shard with more data bounds how far the merged page may reach.
	var (
		frontier    model.SortKey
		hasFrontier bool
	)
	for _, r := range results {
		if r.failed || len(r.items) == 0 || r.next == "" {
			continue
		}
		last := r.items[len(r.items)-1].SortKey()
		if !hasFrontier || cmp(last, frontier) < 0 {
			frontier, hasFrontier = last, true
		}
	}

	consumed := make([]int, len(results))
	out := make([]T, 0, size)
	for len(out) < size {
		best := -1
		var bestKey model.SortKey
		for i, r := range results {
			if r.failed || consumed[i] >= len(r.items) {
				continue
			}
			k := r.items[consumed[i]].SortKey()
			if best < 0 || cmp(k, bestKey) < 0 {
				best, bestKey = i, k
			}
		}
		if best < 0 {
			break
		}
		if hasFrontier && cmp(bestKey, frontier) > 0 {
			break
		}
		out = append(out, results[best].items[consumed[best]])
		consumed[best]++
	}
	return out, consumed
}

// advance computes a shard's next state after emitting consumed of its fetched entities.
func advance[T model.Entity](r fetched[T], consumed int) cursor.ShardState {
	if consumed < len(r.items) {
		return cursor.ShardState{Cursor: r.base, Skip: r.baseSkip + consumed}
	}
	if r.next == "" || r.stuck {
		return cursor.ShardState{Completed: true}
	}
	return cursor.ShardState{Cursor: r.next}
}
