package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rickgao/union-data/internal/api"
	"github.com/rickgao/union-data/internal/buffer"
	"github.com/rickgao/union-data/internal/connection"
	"github.com/rickgao/union-data/internal/model"
)

// Router parses raw stream frames and hands them to the consumers.
type Router interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Buffers() RouterBuffers
	Stats() RouterStats
}

// RouterBuffers provides access to output buffers for consumers.
type RouterBuffers struct {
	Order     *buffer.Growable[OrderMsg]
	PoolOrder *buffer.Growable[PoolOrderMsg]
	Activity  *buffer.Growable[ActivityMsg]
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
	OrderBuffer      buffer.Stats
	PoolOrderBuffer  buffer.Stats
	ActivityBuffer   buffer.Stats
}

var errEmptyData = errors.New("empty data")

type router struct {
	cfg    RouterConfig
	logger *slog.Logger

	input <-chan connection.RawMessage

	orderBuf     *buffer.Growable[OrderMsg]
	poolOrderBuf *buffer.Growable[PoolOrderMsg]
	activityBuf  *buffer.Growable[ActivityMsg]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	received        atomic.Int64
	routed          atomic.Int64
	parseErrors     atomic.Int64
	unknownMessages atomic.Int64
}

// NewRouter creates a new router reading from input.
func NewRouter(cfg RouterConfig, input <-chan connection.RawMessage, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		cfg:          cfg,
		logger:       logger,
		input:        input,
		orderBuf:     buffer.New[OrderMsg](cfg.OrderBufferSize),
		poolOrderBuf: buffer.New[PoolOrderMsg](cfg.PoolOrderBufferSize),
		activityBuf:  buffer.New[ActivityMsg](cfg.ActivityBufferSize),
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started",
		"order_buffer", r.cfg.OrderBufferSize,
		"pool_order_buffer", r.cfg.PoolOrderBufferSize,
		"activity_buffer", r.cfg.ActivityBufferSize,
	)
	return nil
}

// Stop stops routing and closes the output buffers. Consumers still drain
// whatever is buffered.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
		err = ctx.Err()
	}

	r.orderBuf.Close()
	r.poolOrderBuf.Close()
	r.activityBuf.Close()
	return err
}

// Buffers returns output buffers for consumers.
func (r *router) Buffers() RouterBuffers {
	return RouterBuffers{
		Order:     r.orderBuf,
		PoolOrder: r.poolOrderBuf,
		Activity:  r.activityBuf,
	}
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	return RouterStats{
		MessagesReceived: r.received.Load(),
		MessagesRouted:   r.routed.Load(),
		ParseErrors:      r.parseErrors.Load(),
		UnknownMessages:  r.unknownMessages.Load(),
		OrderBuffer:      r.orderBuf.Stats(),
		PoolOrderBuffer:  r.poolOrderBuf.Stats(),
		ActivityBuffer:   r.activityBuf.Stats(),
	}
}

func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(raw)
		}
	}
}

// route parses and routes a single frame.
func (r *router) route(raw connection.RawMessage) {
	r.received.Add(1)

	var env envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		r.logger.Warn("failed to parse envelope", "shard", raw.Shard, "error", err)
		r.parseErrors.Add(1)
		return
	}

	var (
		sent bool
		err  error
	)

	switch env.Type {
	case connection.TopicOrder:
		var msg OrderMsg
		if msg, err = parseOrder(raw, env); err == nil {
			sent = r.orderBuf.Send(msg)
		}

	case connection.TopicPoolOrder:
		var msg PoolOrderMsg
		if msg, err = parsePoolOrder(raw, env); err == nil {
			sent = r.poolOrderBuf.Send(msg)
		}

	case connection.TopicActivity:
		var msg ActivityMsg
		if msg, err = parseActivity(raw, env); err == nil {
			sent = r.activityBuf.Send(msg)
		}

	default:
		// subscribe acks and server notices
		if env.Type != "subscribed" && env.Type != "pong" {
			r.logger.Debug("skipping message type", "type", env.Type, "shard", raw.Shard)
			r.unknownMessages.Add(1)
		}
		return
	}

	if err != nil {
		r.logger.Warn("failed to parse message", "type", env.Type, "shard", raw.Shard, "error", err)
		r.parseErrors.Add(1)
		return
	}
	if sent {
		r.routed.Add(1)
	}
}

func parseOrder(raw connection.RawMessage, env envelope) (OrderMsg, error) {
	if len(env.Data) == 0 {
		return OrderMsg{}, errEmptyData
	}
	var wire api.APIOrder
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return OrderMsg{}, err
	}
	if wire.ID == "" {
		return OrderMsg{}, errors.New("order without id")
	}
	return OrderMsg{
		EventID:    env.EventID,
		Shard:      raw.Shard,
		Order:      wire.ToModel(raw.Shard),
		ReceivedAt: raw.ReceivedAt,
	}, nil
}

func parsePoolOrder(raw connection.RawMessage, env envelope) (PoolOrderMsg, error) {
	if len(env.Data) == 0 {
		return PoolOrderMsg{}, errEmptyData
	}
	var wire poolOrderWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return PoolOrderMsg{}, err
	}
	if wire.ItemID == "" || wire.Order.ID == "" {
		return PoolOrderMsg{}, errors.New("pool order without item or order id")
	}

	var include bool
	switch strings.ToLower(wire.Action) {
	case "include":
		include = true
	case "exclude":
	default:
		return PoolOrderMsg{}, fmt.Errorf("unknown pool action %q", wire.Action)
	}

	return PoolOrderMsg{
		EventID:    env.EventID,
		Shard:      raw.Shard,
		ItemID:     model.NewEntityID(raw.Shard, wire.ItemID),
		Order:      wire.Order.ToModel(raw.Shard),
		Include:    include,
		ReceivedAt: raw.ReceivedAt,
	}, nil
}

func parseActivity(raw connection.RawMessage, env envelope) (ActivityMsg, error) {
	if len(env.Data) == 0 {
		return ActivityMsg{}, errEmptyData
	}
	var wire api.APIActivity
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return ActivityMsg{}, err
	}
	return ActivityMsg{
		EventID:    env.EventID,
		Shard:      raw.Shard,
		Activity:   wire.ToModel(raw.Shard),
		ReceivedAt: raw.ReceivedAt,
	}, nil
}
