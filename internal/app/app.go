// Package app wires configuration into the components shared by the union
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/union-data/internal/aggcache"
	"github.com/rickgao/union-data/internal/aggregate"
	"github.com/rickgao/union-data/internal/api"
	"github.com/rickgao/union-data/internal/bus"
	"github.com/rickgao/union-data/internal/config"
	"github.com/rickgao/union-data/internal/connection"
	"github.com/rickgao/union-data/internal/httpapi"
	"github.com/rickgao/union-data/internal/merge"
	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/order"
	"github.com/rickgao/union-data/internal/rates"
	"github.com/rickgao/union-data/internal/reconcile"
	"github.com/rickgao/union-data/internal/shard"
)

// ShardClients builds a REST client per enabled shard.
func ShardClients(shards []config.ShardConfig, logger *slog.Logger) ([]*api.Client, error) {
	var out []*api.Client
	for _, s := range shards {
		if s.Disabled {
			logger.Info("shard disabled", "blockchain", s.Blockchain)
			continue
		}
		opts := []api.ClientOption{
			api.WithLogger(logger),
			api.WithTimeout(s.Timeout),
			api.WithRetries(s.MaxRetries, time.Second),
		}
		if s.Dialect != "" {
			d, ok := api.DialectByName(s.Dialect)
			if !ok {
				return nil, fmt.Errorf("shard %s: unknown dialect %q", s.Blockchain, s.Dialect)
			}
			opts = append(opts, api.WithDialect(d))
		}
		out = append(out, api.NewClient(s.Chain(), s.RestURL, s.APIKey, opts...))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no enabled shards")
	}
	return out, nil
}

// StreamEndpoints lists the websocket endpoint of every enabled shard that has one.
func StreamEndpoints(shards []config.ShardConfig) []connection.Endpoint {
	var out []connection.Endpoint
	for _, s := range shards {
		if s.Disabled || s.WSURL == "" {
			continue
		}
		out = append(out, connection.Endpoint{Shard: s.Chain(), URL: s.WSURL, APIKey: s.APIKey})
	}
	return out
}

// Publisher is an event sink that must be closed on shutdown.
type Publisher interface {
	aggregate.Publisher
	Close() error
}

// logPublisher drops events after logging them, for deployments without a bus.
type logPublisher struct{ logger *slog.Logger }

func (p logPublisher) Publish(_ context.Context, ev bus.Event) error {
	p.logger.Debug("aggregate event", "type", ev.Type, "kind", ev.Kind, "id", ev.EntityID, "event_id", ev.EventID)
	return nil
}

func (logPublisher) Close() error { return nil }

// OpenPublisher connects the Redis bus, or logs events when no address is set.
func OpenPublisher(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (Publisher, error) {
	if cfg.Addr == "" {
		logger.Warn("redis not configured, aggregate events are only logged")
		return logPublisher{logger: logger}, nil
	}
	rdb, err := bus.Connect(ctx, bus.RedisConfig{
		Addr:          cfg.Addr,
		Password:      cfg.Password,
		DB:            cfg.DB,
		ChannelPrefix: cfg.ChannelPrefix,
		DialTimeout:   cfg.DialTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("redis connected", "addr", cfg.Addr, "prefix", cfg.ChannelPrefix)
	return bus.NewRedisPublisher(rdb, cfg.ChannelPrefix), nil
}

// CachedAggregates fronts src with an aggregate cache fed by the redis bus.
// Without redis the cache could not learn about changes, so src is returned
// as is. The returned func releases the subscription connection.
func CachedAggregates(ctx context.Context, cfg *config.Config, src httpapi.AggregateReader, logger *slog.Logger) (httpapi.AggregateReader, func() error, error) {
	if cfg.Redis.Addr == "" {
		return src, func() error { return nil }, nil
	}
	rdb, err := bus.Connect(ctx, bus.RedisConfig{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	cache := aggcache.New(aggcache.Config{
		TTL:  cfg.HTTP.CacheTTL,
		Size: cfg.HTTP.CacheSize,
	}, src, logger.With("component", "aggcache"))
	sub := bus.NewRedisSubscriber(rdb, cfg.Redis.ChannelPrefix, logger.With("component", "subscriber"))
	if err := cache.Run(ctx, sub); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("subscribe aggregate cache: %w", err)
	}
	return cache, rdb.Close, nil
}

// RatesClient returns the rate service client, or nil when none is configured.
func RatesClient(cfg config.RatesConfig, logger *slog.Logger) *rates.Client {
	if cfg.URL == "" {
		return nil
	}
	return rates.NewClient(cfg.URL, cfg.Timeout, cfg.CacheTTL, logger)
}

// EngineDeps are the runtime collaborators of the aggregate engine.
type EngineDeps struct {
	Store     aggregate.Store
	Publisher aggregate.Publisher
	Marker    aggregate.Marker
	Clients   []*api.Client
	Rates     *rates.Client
}

// NewEngine builds the aggregate engine from config.
func NewEngine(cfg *config.Config, d EngineDeps, logger *slog.Logger) *aggregate.Engine {
	var norm *order.Normalizer
	if d.Rates != nil {
		norm = order.NewNormalizer(d.Rates, logger)
	} else {
		logger.Warn("no rate service, cross-currency orders compare as unresolved")
	}

	return aggregate.NewEngine(aggregate.Deps{
		Store:      d.Store,
		Publisher:  d.Publisher,
		Marker:     d.Marker,
		Comparator: order.NewComparator(norm),
		Validator:  order.NewValidator(),
		Searcher: order.NewSearcher(order.SearchConfig{
			InitialBatch:   cfg.Search.InitialBatch,
			EscalatedBatch: cfg.Search.EscalatedBatch,
			EscalateAfter:  cfg.Search.EscalateAfter,
			MaxAttempts:    cfg.Search.MaxAttempts,
		}, logger),
		Sources: shard.OrderSources(d.Clients),
	}, aggregate.Config{
		MaxAttempts:   cfg.Aggregates.MaxAttempts,
		BidCurrencies: config.ChainLists(cfg.Aggregates.BidCurrencies),
		Origins:       config.ChainLists(cfg.Aggregates.Origins),
	}, logger.With("component", "aggregates"))
}

// RateWatcher polls the tracked currencies and sweeps multicurrency
// aggregates of a chain whenever one of its rates moves. It returns nil when
// rates are not configured.
func RateWatcher(cfg config.RatesConfig, client *rates.Client, engine *aggregate.Engine, logger *slog.Logger) *rates.Watcher {
	if client == nil || len(cfg.Currencies) == 0 {
		return nil
	}
	currencies := make([]rates.Currency, len(cfg.Currencies))
	for i, c := range cfg.Currencies {
		currencies[i] = rates.Currency{Blockchain: model.Blockchain(c.Blockchain), Address: c.Address}
	}
	onChange := func(ctx context.Context, ch rates.Change) {
		visited, err := engine.OnCurrencyRateChanged(ctx, ch.Currency.Blockchain)
		if err != nil {
			logger.Error("multicurrency sweep failed", "blockchain", ch.Currency.Blockchain, "visited", visited, "error", err)
		}
	}
	return rates.NewWatcher(client, currencies, cfg.PollInterval, onChange, logger)
}

// Sweeper builds the reconciliation sweeper from config.
func Sweeper(cfg config.ReconcileConfig, queue reconcile.Queue, engine *aggregate.Engine, logger *slog.Logger) *reconcile.Sweeper {
	rc := reconcile.DefaultConfig()
	if cfg.Interval > 0 {
		rc.Interval = cfg.Interval
	}
	if cfg.Concurrency > 0 {
		rc.Concurrency = cfg.Concurrency
	}
	if cfg.BatchSize > 0 {
		rc.BatchSize = cfg.BatchSize
	}
	return reconcile.NewSweeper(rc, queue, engine, logger.With("component", "reconcile"))
}

// ListingDeps builds the merge engines behind the read API.
func ListingDeps(clients []*api.Client, cfg config.MergeConfig, logger *slog.Logger) (httpapi.Deps, error) {
	set, err := shard.NewSet(clients)
	if err != nil {
		return httpapi.Deps{}, err
	}
	mc := merge.Config{
		DefaultSize:  cfg.DefaultSize,
		MaxSize:      cfg.MaxSize,
		ShardTimeout: cfg.ShardTimeout,
		StuckRetries: cfg.StuckRetries,
	}
	logger = logger.With("component", "merge")
	return httpapi.Deps{
		Items:       merge.New(set.Items, mc, logger),
		Ownerships:  merge.New(set.Ownerships, mc, logger),
		Collections: merge.New(set.Collections, mc, logger),
		Activities:  merge.New(set.Activities, mc, logger),
	}, nil
}
