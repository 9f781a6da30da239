package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/union-data/internal/model"
)

// Currency names a tracked currency on one chain.
type Currency struct {
	Blockchain model.Blockchain
	Address    string
}

// Change describes a moved rate.
type Change struct {
	Currency Currency
	Old      decimal.Decimal
	New      decimal.Decimal
}

// LatestSource returns the current rate of a currency.
type LatestSource interface {
	Latest(ctx context.Context, chain model.Blockchain, currency string) (decimal.Decimal, error)
}

// Watcher polls tracked currencies and reports rates that moved.
type Watcher struct {
	source       LatestSource
	currencies   []Currency
	pollInterval time.Duration
	onChange     func(context.Context, Change)
	logger       *slog.Logger

	mu    sync.RWMutex
	rates map[Currency]decimal.Decimal

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher. onChange runs on the polling goroutine.
func NewWatcher(source LatestSource, currencies []Currency, pollInterval time.Duration, onChange func(context.Context, Change), logger *slog.Logger) *Watcher {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		source:       source,
		currencies:   currencies,
		pollInterval: pollInterval,
		onChange:     onChange,
		logger:       logger,
		rates:        make(map[Currency]decimal.Decimal),
	}
}

// Start takes a baseline reading and begins polling.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.Poll(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("rate watcher stopped")
				return
			case <-ticker.C:
				w.Poll(ctx)
			}
		}
	}()

	return nil
}

// Stop stops polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		w.wg.Wait()
	}
}

// Poll reads every tracked currency once. The first reading of a currency is a
// baseline and never reported as a change.
func (w *Watcher) Poll(ctx context.Context) {
	for _, cur := range w.currencies {
		if ctx.Err() != nil {
			return
		}

		rate, err := w.source.Latest(ctx, cur.Blockchain, cur.Address)
		if err != nil {
			w.logger.Warn("rate fetch failed",
				"blockchain", cur.Blockchain,
				"currency", cur.Address,
				"error", err,
			)
			continue
		}

		w.mu.Lock()
		old, seen := w.rates[cur]
		w.rates[cur] = rate
		w.mu.Unlock()

		if seen && !old.Equal(rate) && w.onChange != nil {
			w.logger.Info("currency rate changed",
				"blockchain", cur.Blockchain,
				"currency", cur.Address,
				"old_rate", old.String(),
				"rate", rate.String(),
			)
			w.onChange(ctx, Change{Currency: cur, Old: old, New: rate})
		}
	}
}

