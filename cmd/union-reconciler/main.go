package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rickgao/union-data/internal/app"
)

// errSweepFailed makes a -once run exit with status 2.
var errSweepFailed = errors.New("some aggregates could not be reconciled")

func main() {
	configPath := flag.String("config", "configs/union.local.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		fmt.Fprintf(os.Stderr, "union-reconciler: %v\n", err)
		if errors.Is(err, errSweepFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(configPath string, once bool) (err error) {
	cfg, logger, closer, err := app.Bootstrap(configPath, "union-reconciler")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer closer.Close()
	defer func() {
		if err != nil {
			logger.Error("union-reconciler failed", "error", err)
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

	engine := app.NewEngine(cfg, app.EngineDeps{
		Store:     storage.Aggregates,
		Publisher: publisher,
		Marker:    storage.Queue,
		Clients:   clients,
		Rates:     app.RatesClient(cfg.Rates, logger),
	}, logger)

	sweeper := app.Sweeper(cfg.Reconcile, storage.Queue, engine, logger)

	if once {
		res := sweeper.Sweep(ctx)
		logger.Info("sweep finished", "taken", res.Taken, "repaired", res.Repaired, "failed", res.Failed)
		if res.Failed > 0 {
			return fmt.Errorf("%d of %d: %w", res.Failed, res.Taken, errSweepFailed)
		}
		return nil
	}

	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sweeper.Stop(shutdownCtx); err != nil {
		logger.Warn("sweeper stop", "error", err)
	}

	logger.Info("union-reconciler stopped")
	return nil
}
