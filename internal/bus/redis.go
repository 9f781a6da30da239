package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rickgao/union-data/internal/model"
)

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	DialTimeout   time.Duration
}

// Connect opens and pings a Redis client.
func Connect(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisPublisher publishes events as JSON on one channel per aggregate kind.
type RedisPublisher struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisPublisher creates a publisher on rdb.
func NewRedisPublisher(rdb *goredis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "union.aggregates"
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Publish sends ev.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, Channel(p.prefix, ev.Kind), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.EventID, err)
	}
	return nil
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// RedisSubscriber forwards events from Redis channels to a handler.
type RedisSubscriber struct {
	rdb    *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisSubscriber creates a subscriber on rdb.
func NewRedisSubscriber(rdb *goredis.Client, prefix string, logger *slog.Logger) *RedisSubscriber {
	if prefix == "" {
		prefix = "union.aggregates"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSubscriber{rdb: rdb, prefix: prefix, logger: logger}
}

// Subscribe starts forwarding events of the given kinds to onEvent until ctx is done.
// It returns once the subscription is confirmed.
func (s *RedisSubscriber) Subscribe(ctx context.Context, kinds []model.AggregateKind, onEvent func(Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	channels := make([]string, len(kinds))
	for i, k := range kinds {
		channels[i] = Channel(s.prefix, k)
	}

	sub := s.rdb.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				ev, err := decodeEvent([]byte(m.Payload))
				if err != nil {
					s.logger.Warn("bad event payload", "channel", m.Channel, "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func decodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, err
	}
	if ev.EventID == "" {
		return Event{}, fmt.Errorf("event without id")
	}
	return ev, nil
}
