package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/union-data/internal/model"
)

// Recomputer rebuilds one aggregate from source.
type Recomputer interface {
	Recompute(ctx context.Context, id model.AggregateID) error
}

// Config holds sweeper configuration.
type Config struct {
	Interval    time.Duration // Time between sweeps (default: 30s)
	Concurrency int           // Max concurrent recomputes (default: 4)
	BatchSize   int           // Marks taken per sweep (default: 100)
	Timeout     time.Duration // Per-aggregate timeout (default: 30s)
	// WarnAttempts logs a mark at error level once it has failed this many times.
	WarnAttempts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		Concurrency:  4,
		BatchSize:    100,
		Timeout:      30 * time.Second,
		WarnAttempts: 5,
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Taken    int
	Repaired int
	Failed   int
}

// Sweeper periodically drains the repair queue.
type Sweeper struct {
	cfg    Config
	queue  Queue
	engine Recomputer
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. Zero config fields take their defaults.
func NewSweeper(cfg Config, queue Queue, engine Recomputer, logger *slog.Logger) *Sweeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.WarnAttempts <= 0 {
		cfg.WarnAttempts = def.WarnAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:    cfg,
		queue:  queue,
		engine: engine,
		logger: logger,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("reconcile sweeper started",
		"interval", s.cfg.Interval,
		"concurrency", s.cfg.Concurrency,
		"batch_size", s.cfg.BatchSize,
	)
	return nil
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reconcile sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Sweep(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep takes one batch of marks and recomputes them concurrently.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	start := time.Now()

	marks, err := s.queue.Pending(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to read reconcile queue", "error", err)
		return SweepResult{}
	}
	if len(marks) == 0 {
		s.logger.Debug("no aggregates to reconcile")
		return SweepResult{}
	}

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	var repaired, failed atomic.Int64

	for _, m := range marks {
		wg.Add(1)
		go func(m Mark) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			if err := s.repair(ctx, m); err != nil {
				failed.Add(1)
				return
			}
			repaired.Add(1)
		}(m)
	}

	wg.Wait()

	res := SweepResult{Taken: len(marks), Repaired: int(repaired.Load()), Failed: int(failed.Load())}
	s.logger.Info("reconcile sweep complete",
		"taken", res.Taken,
		"repaired", res.Repaired,
		"failed", res.Failed,
		"duration", time.Since(start),
	)
	return res
}

func (s *Sweeper) repair(ctx context.Context, m Mark) error {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.engine.Recompute(rctx, m.ID); err != nil {
		level := slog.LevelWarn
		if m.Attempts+1 >= s.cfg.WarnAttempts {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "failed to reconcile aggregate",
			"id", m.ID.String(),
			"attempts", m.Attempts+1,
			"error", err,
		)
		if ferr := s.queue.Failed(ctx, m, err.Error()); ferr != nil {
			s.logger.Error("failed to record reconcile failure", "id", m.ID.String(), "error", ferr)
		}
		return err
	}

	if err := s.queue.Done(ctx, m); err != nil {
		s.logger.Error("failed to clear reconcile mark", "id", m.ID.String(), "error", err)
		return err
	}
	return nil
}
