package consumer

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/union-data/internal/aggregate"
	"github.com/rickgao/union-data/internal/buffer"
	"github.com/rickgao/union-data/internal/dedup"
	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/router"
)

// Reasons recorded when an event could not be applied.
const (
	ReasonOrderFailed     = "order event failed"
	ReasonPoolOrderFailed = "pool order event failed"
	ReasonActivityFailed  = "activity event failed"
)

// Applier applies stream events to aggregates. *aggregate.Engine implements it.
type Applier interface {
	OnOrderUpdated(ctx context.Context, o model.Order) error
	OnPoolOrder(ctx context.Context, item model.EntityID, o model.Order, action aggregate.PoolAction) error
	OnActivity(ctx context.Context, a model.Activity) error
}

// BatchMarker marks many aggregates at once. Markers that implement it are
// used that way when an event fails.
type BatchMarker interface {
	MarkBatch(ctx context.Context, ids []model.AggregateID, reason string) error
}

// Config tunes the consumer.
type Config struct {
	// Workers is the number of goroutines applying order events. Each order id
	// always lands on the same worker.
	Workers int
	// DedupSize bounds the event id memory.
	DedupSize int
	// Timeout bounds one event application.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		DedupSize: 100000,
		Timeout:   30 * time.Second,
	}
}

// Stats counts consumer outcomes.
type Stats struct {
	Applied    int64
	Duplicates int64
	Failed     int64
	Marked     int64
}

// Consumer drains the router buffers into the aggregate engine. Failed events
// mark their aggregates for reconciliation instead of being retried inline.
type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	in      router.RouterBuffers
	applier Applier
	marker  aggregate.Marker
	seen    *dedup.Set
	lanes   []*buffer.Growable[router.OrderMsg]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	applied    atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
	marked     atomic.Int64
}

// New creates a Consumer. marker may be nil, in which case failures are only logged.
func New(cfg Config, in router.RouterBuffers, applier Applier, marker aggregate.Marker, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = defaults.DedupSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &Consumer{
		cfg:     cfg,
		logger:  logger,
		in:      in,
		applier: applier,
		marker:  marker,
		seen:    dedup.New(cfg.DedupSize),
	}
}

// lane picks the order worker for an order id.
func lane(orderID string, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return int(h.Sum32() % uint32(lanes))
}

// Start launches the workers.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.lanes = make([]*buffer.Growable[router.OrderMsg], c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = buffer.New[router.OrderMsg](64)
		c.wg.Add(1)
		go c.orderLoop(c.lanes[i])
	}
	c.wg.Add(3)
	go c.dispatchLoop()
	go c.poolOrderLoop()
	go c.activityLoop()

	c.logger.Info("consumer started", "order_workers", c.cfg.Workers, "dedup_size", c.cfg.DedupSize)
	return nil
}

// Stop waits for the workers. Closing the router buffers first lets them
// drain what is already queued; otherwise they exit on cancellation.
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("stopping consumer")

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("consumer drain timed out, cancelling")
		if c.cancel != nil {
			c.cancel()
		}
		<-done
	}
	if c.cancel != nil {
		c.cancel()
	}

	s := c.Stats()
	c.logger.Info("consumer stopped",
		"applied", s.Applied,
		"duplicates", s.Duplicates,
		"failed", s.Failed,
		"marked", s.Marked,
	)
	return nil
}

// Stats returns current counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Applied:    c.applied.Load(),
		Duplicates: c.duplicates.Load(),
		Failed:     c.failed.Load(),
		Marked:     c.marked.Load(),
	}
}

// dispatchLoop fans order events out to the lanes, keeping per-order arrival order.
func (c *Consumer) dispatchLoop() {
	defer c.wg.Done()
	defer func() {
		for _, l := range c.lanes {
			l.Close()
		}
	}()
	for {
		msg, ok := c.in.Order.ReceiveContext(c.ctx)
		if !ok {
			return
		}
		c.lanes[lane(msg.Order.ID, len(c.lanes))].Send(msg)
	}
}

func (c *Consumer) orderLoop(in *buffer.Growable[router.OrderMsg]) {
	defer c.wg.Done()
	for {
		msg, ok := in.ReceiveContext(c.ctx)
		if !ok {
			return
		}
		c.HandleOrder(c.ctx, msg)
	}
}

func (c *Consumer) poolOrderLoop() {
	defer c.wg.Done()
	for {
		msg, ok := c.in.PoolOrder.ReceiveContext(c.ctx)
		if !ok {
			return
		}
		c.HandlePoolOrder(c.ctx, msg)
	}
}

func (c *Consumer) activityLoop() {
	defer c.wg.Done()
	for {
		msg, ok := c.in.Activity.ReceiveContext(c.ctx)
		if !ok {
			return
		}
		c.HandleActivity(c.ctx, msg)
	}
}

// HandleOrder applies one order message.
func (c *Consumer) HandleOrder(ctx context.Context, msg router.OrderMsg) {
	c.handle(ctx, msg.EventID, func(ctx context.Context) error {
		return c.applier.OnOrderUpdated(ctx, msg.Order)
	}, func() []model.AggregateID {
		var ids []model.AggregateID
		for _, t := range aggregate.Targets(msg.Order) {
			ids = append(ids, t.ID)
		}
		return ids
	}, ReasonOrderFailed)
}

// HandlePoolOrder applies one pool order message.
func (c *Consumer) HandlePoolOrder(ctx context.Context, msg router.PoolOrderMsg) {
	action := aggregate.PoolExclude
	if msg.Include {
		action = aggregate.PoolInclude
	}
	c.handle(ctx, msg.EventID, func(ctx context.Context) error {
		return c.applier.OnPoolOrder(ctx, msg.ItemID, msg.Order, action)
	}, func() []model.AggregateID {
		return []model.AggregateID{model.ItemAggregateID(msg.ItemID)}
	}, ReasonPoolOrderFailed)
}

// HandleActivity applies one activity message.
func (c *Consumer) HandleActivity(ctx context.Context, msg router.ActivityMsg) {
	c.handle(ctx, msg.EventID, func(ctx context.Context) error {
		return c.applier.OnActivity(ctx, msg.Activity)
	}, func() []model.AggregateID {
		if msg.Activity.ItemID == nil {
			return nil
		}
		return []model.AggregateID{model.ItemAggregateID(*msg.Activity.ItemID)}
	}, ReasonActivityFailed)
}

func (c *Consumer) handle(ctx context.Context, eventID string, apply func(context.Context) error, targets func() []model.AggregateID, reason string) {
	if c.seen.Seen(eventID) {
		c.duplicates.Add(1)
		c.logger.Debug("duplicate event skipped", "event_id", eventID)
		return
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	err := apply(actx)
	cancel()

	if err == nil {
		c.applied.Add(1)
		return
	}

	c.failed.Add(1)
	// a redelivery of this event should be applied again
	c.seen.Forget(eventID)
	c.logger.Warn("event apply failed", "event_id", eventID, "reason", reason, "error", err)

	if c.marker == nil || ctx.Err() != nil {
		return
	}
	ids := targets()
	if bm, ok := c.marker.(BatchMarker); ok && len(ids) > 0 {
		if err := bm.MarkBatch(ctx, ids, reason); err != nil {
			c.logger.Error("failed to mark aggregates", "count", len(ids), "error", err)
			return
		}
		c.marked.Add(int64(len(ids)))
		return
	}
	for _, id := range ids {
		if err := c.marker.Mark(ctx, id, reason); err != nil {
			c.logger.Error("failed to mark aggregate", "id", id, "error", err)
			continue
		}
		c.marked.Add(1)
	}
}
