package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/union-data/internal/model"
)

// Manager keeps one stream connection open per shard and merges their
// frames into a single channel for the router.
type Manager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Messages() <-chan RawMessage
	Stats() ManagerStats
}

type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	dial func(ClientConfig, *slog.Logger) Client

	out chan RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	clients map[model.Blockchain]Client

	received   atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// NewManager creates a stream Manager for the configured endpoints.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultManagerConfig()
	if len(cfg.Topics) == 0 {
		cfg.Topics = defaults.Topics
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = defaults.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = max(defaults.ReconnectMaxWait, cfg.ReconnectBaseWait)
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = defaults.MessageBufferSize
	}

	return &manager{
		cfg:     cfg,
		logger:  logger,
		dial:    NewClient,
		out:     make(chan RawMessage, cfg.MessageBufferSize),
		clients: make(map[model.Blockchain]Client),
	}
}

// Start launches one supervised stream per endpoint. Connection failures
// are retried in the background, so Start only fails on bad config.
func (m *manager) Start(ctx context.Context) error {
	if len(m.cfg.Endpoints) == 0 {
		return errors.New("no stream endpoints configured")
	}
	seen := make(map[model.Blockchain]bool, len(m.cfg.Endpoints))
	for _, ep := range m.cfg.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("stream endpoint %s: empty url", ep.Shard)
		}
		if seen[ep.Shard] {
			return fmt.Errorf("stream endpoint %s: duplicate shard", ep.Shard)
		}
		seen[ep.Shard] = true
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	for _, ep := range m.cfg.Endpoints {
		m.wg.Add(1)
		go m.supervise(ep)
	}

	m.logger.Info("stream manager started", "endpoints", len(m.cfg.Endpoints), "topics", m.cfg.Topics)
	return nil
}

// Stop closes every connection and waits for the supervisors to exit.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping stream manager")

	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	for _, c := range m.clients {
		_ = c.Close()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(m.out)
		m.logger.Info("stream manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("stream manager stop timed out")
		return ctx.Err()
	}
}

// Messages returns the merged frame channel. It is closed by Stop.
func (m *manager) Messages() <-chan RawMessage {
	return m.out
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	connected := 0
	for _, c := range m.clients {
		if c.IsConnected() {
			connected++
		}
	}
	m.mu.Unlock()

	return ManagerStats{
		Connected:  connected,
		Received:   m.received.Load(),
		Dropped:    m.dropped.Load(),
		Reconnects: m.reconnects.Load(),
	}
}

// supervise connects, subscribes and pumps one endpoint until shutdown,
// reconnecting with exponential backoff.
func (m *manager) supervise(ep Endpoint) {
	defer m.wg.Done()

	logger := m.logger.With("shard", ep.Shard)
	wait := m.cfg.ReconnectBaseWait
	first := true

	for {
		if !first {
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(wait):
			}
			m.reconnects.Add(1)
			logger.Info("attempting reconnection", "wait", wait)
		}
		first = false

		c, err := m.open(ep, logger)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			logger.Warn("stream connect failed", "error", err)
			wait = min(wait*2, m.cfg.ReconnectMaxWait)
			continue
		}
		wait = m.cfg.ReconnectBaseWait

		err = m.pump(ep.Shard, c)
		_ = c.Close()
		if m.ctx.Err() != nil {
			return
		}
		logger.Warn("stream connection lost", "error", err)
	}
}

func (m *manager) open(ep Endpoint, logger *slog.Logger) (Client, error) {
	c := m.dial(ClientConfig{
		URL:          ep.URL,
		APIKey:       ep.APIKey,
		PingInterval: m.cfg.PingInterval,
		PingTimeout:  m.cfg.PingTimeout,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}, logger)

	if err := c.Connect(m.ctx); err != nil {
		return nil, err
	}

	cmd, err := json.Marshal(Command{ID: 1, Cmd: "subscribe", Params: SubscribeParams{Topics: m.cfg.Topics}})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.Send(cmd); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	m.mu.Lock()
	m.clients[ep.Shard] = c
	m.mu.Unlock()

	logger.Info("stream subscribed", "topics", m.cfg.Topics)
	return c, nil
}

// pump forwards frames until the client fails or the manager stops.
func (m *manager) pump(shard model.Blockchain, c Client) error {
	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()

		case err := <-c.Errors():
			return err

		case msg, ok := <-c.Messages():
			if !ok {
				return ErrNotConnected
			}
			m.received.Add(1)

			select {
			case m.out <- RawMessage{Data: msg.Data, Shard: shard, ReceivedAt: msg.ReceivedAt}:
			case <-m.ctx.Done():
				return m.ctx.Err()
			default:
				m.dropped.Add(1)
				m.logger.Warn("message buffer full, dropping", "shard", shard)
			}
		}
	}
}
