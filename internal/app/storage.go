package app

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/rickgao/union-data/internal/aggregate"
	"github.com/rickgao/union-data/internal/config"
	"github.com/rickgao/union-data/internal/database"
	"github.com/rickgao/union-data/internal/database/ormstore"
	"github.com/rickgao/union-data/internal/reconcile"
)

// Storage is the aggregate store and reconcile queue of one backend.
type Storage struct {
	Driver     string
	Aggregates aggregate.Store
	Queue      reconcile.Queue
	Ping       func(ctx context.Context) error
	close      func()
}

// Close releases the backend.
func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStorage connects to the configured backend and migrates its schema.
func OpenStorage(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to database",
			"driver", cfg.Driver,
			"host", cfg.Postgres.Host,
			"port", cfg.Postgres.Port,
			"database", cfg.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Storage{
			Driver:     cfg.Driver,
			Aggregates: database.NewAggregateStore(pool),
			Queue:      database.NewReconcileQueue(pool),
			Ping:       pool.Ping,
			close:      pool.Close,
		}, nil

	case config.DriverGormPostgres, config.DriverSQLite:
		db, err := openORM(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Driver:     cfg.Driver,
			Aggregates: ormstore.NewStore(db),
			Queue:      ormstore.NewQueue(db),
			Ping: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			close: func() {
				if err := ormstore.Close(db); err != nil {
					logger.Warn("failed to close database", "error", err)
				}
			},
		}, nil

	case config.DriverMemory, "":
		logger.Warn("using in-memory aggregate store, state is lost on exit")
		return &Storage{
			Driver:     config.DriverMemory,
			Aggregates: aggregate.NewMemoryStore(),
			Queue:      reconcile.NewMemoryQueue(),
			Ping:       func(context.Context) error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openORM(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	if cfg.Driver == config.DriverSQLite {
		logger.Info("opening database", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return ormstore.OpenSQLite(cfg.SQLitePath)
	}
	logger.Info("connecting to database",
		"driver", cfg.Driver,
		"host", cfg.Postgres.Host,
		"database", cfg.Postgres.Name,
	)
	return ormstore.OpenPostgres(cfg.Postgres)
}
