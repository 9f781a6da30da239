package aggregate

import (
	"context"
	"fmt"

	"github.com/rickgao/union-data/internal/model"
)

// Validate checks a stored aggregate before it is published: every slot holds a valid
// order in its own currency and each overall best is the best of its slots.
func (e *Engine) Validate(ctx context.Context, agg *model.Aggregate) error {
	if agg == nil {
		return fmt.Errorf("%w: nil aggregate", ErrInvalidAggregate)
	}
	if agg.Version < 1 {
		return fmt.Errorf("%w: %s has version %d", ErrInvalidAggregate, agg.ID, agg.Version)
	}
	chain := agg.ID.ID.Blockchain
	if err := e.validateScope(ctx, chain, "", &agg.BestOrders); err != nil {
		return fmt.Errorf("%s: %w", agg.ID, err)
	}
	for name, b := range agg.Origins {
		if err := e.validateScope(ctx, chain, name, b); err != nil {
			return fmt.Errorf("%s: %w", agg.ID, err)
		}
	}
	return nil
}

func (e *Engine) validateScope(ctx context.Context, chain model.Blockchain, origin string, b *model.BestOrders) error {
	for _, side := range []model.OrderSide{model.SideSell, model.SideBid} {
		slots := b.BestSellOrders
		var allow func(string) bool
		if side == model.SideBid {
			slots = b.BestBidOrders
			allow = e.bidAllowed(chain)
		}
		for currency, s := range slots {
			if s == nil || !s.Valid {
				return fmt.Errorf("%w: origin %q %s slot %s holds an invalid order", ErrInvalidAggregate, origin, side, currency)
			}
			if s.Currency != currency {
				return fmt.Errorf("%w: origin %q %s slot %s holds order %s in %s",
					ErrInvalidAggregate, origin, side, currency, s.ID, s.Currency)
			}
		}

		want := e.cmp.Best(ctx, side, sortedSlots(slots, allow)...)
		got := b.Best(side)
		switch {
		case want == nil && got == nil:
		case want == nil || got == nil || want.ID != got.ID:
			return fmt.Errorf("%w: origin %q best %s is %s, expected %s",
				ErrInvalidAggregate, origin, side, summaryID(got), summaryID(want))
		}
	}
	return nil
}

func summaryID(s *model.OrderSummary) string {
	if s == nil {
		return "<none>"
	}
	return s.ID
}
