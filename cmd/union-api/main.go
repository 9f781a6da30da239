package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rickgao/union-data/internal/app"
	"github.com/rickgao/union-data/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "configs/union.local.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "union-api: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) (err error) {
	cfg, logger, closer, err := app.Bootstrap(configPath, "union-api")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer closer.Close()
	defer func() {
		if err != nil {
			logger.Error("union-api failed", "error", err)
		}
	}()

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	storage, err := app.OpenStorage(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer storage.Close()

	clients, err := app.ShardClients(cfg.Shards, logger)
	if err != nil {
		return fmt.Errorf("build shard clients: %w", err)
	}

	deps, err := app.ListingDeps(clients, cfg.Merge, logger)
	if err != nil {
		return fmt.Errorf("build listings: %w", err)
	}

	aggregates, closeCache, err := app.CachedAggregates(ctx, cfg, storage.Aggregates, logger)
	if err != nil {
		return fmt.Errorf("open aggregate cache: %w", err)
	}
	defer closeCache()

	deps.Aggregates = aggregates
	deps.Checks = map[string]httpapi.HealthCheck{"store": storage.Ping}

	server := httpapi.New(cfg.HTTP, deps, logger.With("component", "http"))
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("union-api stopped")
	return nil
}
