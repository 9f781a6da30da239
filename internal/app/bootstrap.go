package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/union-data/internal/config"
	"github.com/rickgao/union-data/internal/logging"
	"github.com/rickgao/union-data/internal/version"
)

// Bootstrap loads and validates the config, then installs the process logger
// as slog's default. The closer releases the log file, if any.
func Bootstrap(configPath, binary string) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closer := logging.New(cfg.Logging)
	logger = logger.With("binary", binary, "instance", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"shards", len(cfg.Shards),
		"driver", cfg.Database.Driver,
	)
	return cfg, logger, closer, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
