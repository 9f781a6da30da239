package aggcache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/union-data/internal/bus"
	"github.com/rickgao/union-data/internal/dedup"
	"github.com/rickgao/union-data/internal/model"
)

// Source is the store the cache reads through to.
type Source interface {
	Get(ctx context.Context, id model.AggregateID) (*model.Aggregate, error)
	FindByIDs(ctx context.Context, ids []model.AggregateID) ([]*model.Aggregate, error)
}

// Subscriber delivers bus events. bus.RedisSubscriber implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, kinds []model.AggregateKind, onEvent func(bus.Event)) error
}

// Config holds cache configuration.
type Config struct {
	TTL       time.Duration // How long an entry is served without an event (default: 30s)
	Size      int           // Max cached aggregates (default: 50000)
	DedupSize int           // Remembered event ids (default: 10000)
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:       30 * time.Second,
		Size:      50000,
		DedupSize: 10000,
	}
}

// Stats holds cache counters.
type Stats struct {
	Hits       int64
	Misses     int64
	Applied    int64
	Duplicates int64
	Entries    int
}

type entry struct {
	id      model.AggregateID
	agg     *model.Aggregate // nil means the store has no such aggregate
	expires time.Time
}

// Cache is a read-through aggregate cache kept fresh by bus events.
type Cache struct {
	src    Source
	cfg    Config
	logger *slog.Logger
	seen   *dedup.Set
	now    func() time.Time

	mu      sync.Mutex
	order   *list.List
	entries map[model.AggregateID]*list.Element
	// gen changes on every applied event; reads that straddle a change are not cached.
	gen uint64

	hits       atomic.Int64
	misses     atomic.Int64
	applied    atomic.Int64
	duplicates atomic.Int64
}

// New creates a cache over src.
func New(cfg Config, src Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = def.DedupSize
	}
	return &Cache{
		src:     src,
		cfg:     cfg,
		logger:  logger,
		seen:    dedup.New(cfg.DedupSize),
		now:     time.Now,
		order:   list.New(),
		entries: make(map[model.AggregateID]*list.Element),
	}
}

// Run subscribes the cache to aggregate events of every kind. Events flow
// until ctx is done.
func (c *Cache) Run(ctx context.Context, sub Subscriber) error {
	kinds := []model.AggregateKind{model.KindItem, model.KindOwnership, model.KindCollection}
	if err := sub.Subscribe(ctx, kinds, c.Apply); err != nil {
		return err
	}
	c.logger.Info("aggregate cache subscribed", "ttl", c.cfg.TTL, "size", c.cfg.Size)
	return nil
}

// Get returns the aggregate, or nil when the store has none.
func (c *Cache) Get(ctx context.Context, id model.AggregateID) (*model.Aggregate, error) {
	c.mu.Lock()
	agg, ok := c.lookupLocked(id)
	gen := c.gen
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
		return agg, nil
	}
	c.misses.Add(1)

	agg, err := c.src.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.putLocked(id, agg)
	}
	c.mu.Unlock()
	return agg, nil
}

// FindByIDs returns the aggregates that exist among ids, reading only misses
// from the store.
func (c *Cache) FindByIDs(ctx context.Context, ids []model.AggregateID) ([]*model.Aggregate, error) {
	out := make([]*model.Aggregate, 0, len(ids))
	var missing []model.AggregateID

	c.mu.Lock()
	for _, id := range ids {
		agg, ok := c.lookupLocked(id)
		switch {
		case !ok:
			missing = append(missing, id)
		case agg != nil:
			out = append(out, agg)
		}
	}
	gen := c.gen
	c.mu.Unlock()

	c.hits.Add(int64(len(ids) - len(missing)))
	if len(missing) == 0 {
		return out, nil
	}
	c.misses.Add(int64(len(missing)))

	found, err := c.src.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	out = append(out, found...)

	c.mu.Lock()
	if c.gen == gen {
		byID := make(map[model.AggregateID]*model.Aggregate, len(found))
		for _, a := range found {
			byID[a.ID] = a
		}
		for _, id := range missing {
			c.putLocked(id, byID[id])
		}
	}
	c.mu.Unlock()
	return out, nil
}

// Apply folds one bus event into the cache. Repeated event ids are dropped.
// An update replaces the entry unless a newer version is already cached; a
// delete drops the entry so the next read goes to the store.
func (c *Cache) Apply(ev bus.Event) {
	if c.seen.Seen(ev.EventID) {
		c.duplicates.Add(1)
		return
	}
	id := model.AggregateID{Kind: ev.Kind, ID: ev.EntityID}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.applied.Add(1)

	switch ev.Type {
	case bus.EventUpdate:
		if ev.Aggregate == nil {
			c.removeLocked(id)
			return
		}
		if el, ok := c.entries[id]; ok {
			if cur := el.Value.(*entry).agg; cur != nil && cur.Version > ev.Aggregate.Version {
				return
			}
		}
		c.putLocked(id, ev.Aggregate)
	case bus.EventDelete:
		c.removeLocked(id)
	default:
		c.logger.Warn("unknown event type", "type", ev.Type, "event_id", ev.EventID)
		c.removeLocked(id)
	}
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Applied:    c.applied.Load(),
		Duplicates: c.duplicates.Load(),
		Entries:    n,
	}
}

// lookupLocked returns a fresh entry. Caller holds mu.
func (c *Cache) lookupLocked(id model.AggregateID) (*model.Aggregate, bool) {
	el, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expires) {
		c.order.Remove(el)
		delete(c.entries, id)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.agg, true
}

// putLocked stores agg under id, evicting the least recently used entry when full.
// Caller holds mu.
func (c *Cache) putLocked(id model.AggregateID, agg *model.Aggregate) {
	expires := c.now().Add(c.cfg.TTL)
	if el, ok := c.entries[id]; ok {
		e := el.Value.(*entry)
		e.agg = agg
		e.expires = expires
		c.order.MoveToFront(el)
		return
	}
	c.entries[id] = c.order.PushFront(&entry{id: id, agg: agg, expires: expires})
	if c.order.Len() > c.cfg.Size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).id)
	}
}

// removeLocked drops id. Caller holds mu.
func (c *Cache) removeLocked(id model.AggregateID) {
	if el, ok := c.entries[id]; ok {
		c.order.Remove(el)
		delete(c.entries, id)
	}
}
