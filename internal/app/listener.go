package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rickgao/union-data/internal/aggregate"
	"github.com/rickgao/union-data/internal/config"
	"github.com/rickgao/union-data/internal/connection"
	"github.com/rickgao/union-data/internal/consumer"
	"github.com/rickgao/union-data/internal/rates"
	"github.com/rickgao/union-data/internal/reconcile"
	"github.com/rickgao/union-data/internal/router"
)

// Listener runs the stream pipeline: shard streams, router, consumers, and
// optionally the rate watcher and an in-process reconciliation sweep.
type Listener struct {
	logger   *slog.Logger
	streams  connection.Manager
	router   router.Router
	consumer *consumer.Consumer
	watcher  *rates.Watcher
	sweeper  *reconcile.Sweeper
}

// ListenerDeps are the collaborators of a Listener. Watcher and Sweeper are optional.
type ListenerDeps struct {
	Endpoints []connection.Endpoint
	Engine    *aggregate.Engine
	Marker    aggregate.Marker
	Watcher   *rates.Watcher
	Sweeper   *reconcile.Sweeper
}

// NewListener assembles the pipeline.
func NewListener(cfg *config.Config, d ListenerDeps, logger *slog.Logger) *Listener {
	mc := connection.DefaultManagerConfig()
	mc.Endpoints = d.Endpoints
	if cfg.Stream.ReconnectBaseDelay > 0 {
		mc.ReconnectBaseWait = cfg.Stream.ReconnectBaseDelay
	}
	if cfg.Stream.ReconnectMaxDelay > 0 {
		mc.ReconnectMaxWait = cfg.Stream.ReconnectMaxDelay
	}
	if cfg.Stream.PingInterval > 0 {
		mc.PingInterval = cfg.Stream.PingInterval
	}
	if cfg.Stream.ReadTimeout > 0 {
		mc.PingTimeout = cfg.Stream.ReadTimeout
	}
	if cfg.Stream.BufferSize > 0 {
		mc.MessageBufferSize = cfg.Stream.BufferSize
	}
	streams := connection.NewManager(mc, logger.With("component", "streams"))

	rt := router.NewRouter(router.DefaultRouterConfig(), streams.Messages(), logger.With("component", "router"))

	cons := consumer.New(consumer.Config{
		Workers:   cfg.Consumer.Workers,
		DedupSize: cfg.Consumer.DedupSize,
	}, rt.Buffers(), d.Engine, d.Marker, logger.With("component", "consumer"))

	return &Listener{
		logger:   logger,
		streams:  streams,
		router:   rt,
		consumer: cons,
		watcher:  d.Watcher,
		sweeper:  d.Sweeper,
	}
}

// Start starts every stage, downstream first.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.consumer.Start(ctx); err != nil {
		return err
	}
	if err := l.router.Start(ctx); err != nil {
		return err
	}
	if err := l.streams.Start(ctx); err != nil {
		return err
	}
	if l.watcher != nil {
		if err := l.watcher.Start(ctx); err != nil {
			return err
		}
	}
	if l.sweeper != nil {
		if err := l.sweeper.Start(ctx); err != nil {
			return err
		}
	}
	l.logger.Info("listener running")
	return nil
}

// Stop stops every stage, upstream first, so buffered events are still applied.
func (l *Listener) Stop(ctx context.Context) error {
	var errs []error
	if l.watcher != nil {
		l.watcher.Stop()
	}
	if err := l.streams.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := l.router.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := l.consumer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if l.sweeper != nil {
		if err := l.sweeper.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConsumerStats exposes the consumer counters.
func (l *Listener) ConsumerStats() consumer.Stats {
	return l.consumer.Stats()
}
