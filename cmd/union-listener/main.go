package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rickgao/union-data/internal/app"
	"github.com/rickgao/union-data/internal/config"
	"github.com/rickgao/union-data/internal/httpapi"
	"github.com/rickgao/union-data/internal/reconcile"
)

func main() {
	configPath := flag.String("config", "configs/union.local.yaml", "path to config file")
	reconcileFlag := flag.Bool("reconcile", false, "run the reconciliation sweep in this process")
	serveHealth := flag.Bool("http", false, "serve /health and /version on http.addr")
	flag.Parse()

	if err := run(*configPath, *reconcileFlag, *serveHealth); err != nil {
		fmt.Fprintf(os.Stderr, "union-listener: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, reconcileInProcess, serveHealth bool) (err error) {
	cfg, logger, closer, err := app.Bootstrap(configPath, "union-listener")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer closer.Close()
	defer func() {
		if err != nil {
			logger.Error("union-listener failed", "error", err)
		}
	}()

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	storage, err := app.OpenStorage(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer storage.Close()

	publisher, err := app.OpenPublisher(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer publisher.Close()

	clients, err := app.ShardClients(cfg.Shards, logger)
	if err != nil {
		return fmt.Errorf("build shard clients: %w", err)
	}

	ratesClient := app.RatesClient(cfg.Rates, logger)
	engine := app.NewEngine(cfg, app.EngineDeps{
		Store:     storage.Aggregates,
		Publisher: publisher,
		Marker:    storage.Queue,
		Clients:   clients,
		Rates:     ratesClient,
	}, logger)

	endpoints := app.StreamEndpoints(cfg.Shards)
	if len(endpoints) == 0 {
		return errors.New("no shard has a stream url")
	}

	// A memory queue is only visible to this process.
	var sweeper *reconcile.Sweeper
	if reconcileInProcess || storage.Driver == config.DriverMemory {
		sweeper = app.Sweeper(cfg.Reconcile, storage.Queue, engine, logger)
	}

	listener := app.NewListener(cfg, app.ListenerDeps{
		Endpoints: endpoints,
		Engine:    engine,
		Marker:    storage.Queue,
		Watcher:   app.RateWatcher(cfg.Rates, ratesClient, engine, logger),
		Sweeper:   sweeper,
	}, logger)

	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}

	if serveHealth {
		server := httpapi.New(cfg.HTTP, httpapi.Deps{
			Checks: map[string]httpapi.HealthCheck{"store": storage.Ping},
		}, logger.With("component", "http"))
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	logger.Info("union-listener running", "instance_id", cfg.Instance.ID, "streams", len(endpoints))

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := listener.Stop(shutdownCtx); err != nil {
		logger.Warn("listener stop", "error", err)
	}

	s := listener.ConsumerStats()
	logger.Info("union-listener stopped", "applied", s.Applied, "failed", s.Failed)
	return nil
}
