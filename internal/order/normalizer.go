package order

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/union-data/internal/model"
)

// RateSource returns the USD value of one unit of currency on chain at a point in time.
type RateSource interface {
	Rate(ctx context.Context, chain model.Blockchain, currency string, at time.Time) (decimal.Decimal, error)
}

// Normalizer converts native order prices to USD.
type Normalizer struct {
	rates  RateSource
	now    func() time.Time
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer over rates.
func NewNormalizer(rates RateSource, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{rates: rates, now: time.Now, logger: logger}
}

// USD returns the USD price of s, caching it on s. ok is false when no rate is available.
func (n *Normalizer) USD(ctx context.Context, s *model.OrderSummary) (decimal.Decimal, bool) {
	if s.PriceUSD != nil {
		return *s.PriceUSD, true
	}
	if n == nil || n.rates == nil {
		return decimal.Zero, false
	}

	rate, err := n.rates.Rate(ctx, s.Blockchain, s.Currency, n.now())
	if err != nil {
		n.logger.Warn("currency rate unavailable",
			"blockchain", s.Blockchain,
			"currency", s.Currency,
			"error", err,
		)
		return decimal.Zero, false
	}

	usd := s.Price.Mul(rate)
	s.PriceUSD = &usd
	return usd, true
}
