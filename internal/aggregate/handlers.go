package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rickgao/union-data/internal/model"
)

// PoolAction says whether an AMM pool order joins or leaves an item.
type PoolAction string

// Pool actions.
const (
	PoolInclude PoolAction = "INCLUDE"
	PoolExclude PoolAction = "EXCLUDE"
)

// sweepPageSize bounds one FindMulticurrency page during a rate sweep.
const sweepPageSize = 100

// OnOrderUpdated applies a changed order to every aggregate it touches.
func (e *Engine) OnOrderUpdated(ctx context.Context, o model.Order) error {
	if !o.LastUpdatedAt.IsZero() && !e.orders.Advance(o.ID, o.LastUpdatedAt) {
		e.stale.Add(1)
		e.logger.Debug("stale order update dropped", "order", o.ID, "updated_at", o.LastUpdatedAt)
		return nil
	}

	targets := Targets(o)
	if len(targets) == 0 {
		e.logger.Debug("order has no target, skipping", "order", o.ID)
		return nil
	}

	var errs []error
	for _, t := range targets {
		err := e.update(ctx, t.ID, func(agg *model.Aggregate) error {
			if t.Owner != "" {
				agg.Owner = t.Owner
			}
			return e.applyOrder(ctx, agg, o)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s on %s: %w", o.ID, t.ID, err))
		}
	}
	return errors.Join(errs...)
}

// OnPoolOrder includes or excludes a pool sell order on item.
func (e *Engine) OnPoolOrder(ctx context.Context, item model.EntityID, o model.Order, action PoolAction) error {
	o.Side = model.SideSell
	id := model.ItemAggregateID(item)

	err := e.update(ctx, id, func(agg *model.Aggregate) error {
		s := e.validator.Summary(o, "")
		agg.PoolSellOrders = removePoolOrder(agg.PoolSellOrders, o.ID)

		if action == PoolInclude && s.Valid {
			agg.PoolSellOrders = append(agg.PoolSellOrders, model.PoolOrder{Currency: s.Currency, Order: *s.Clone()})
			sort.Slice(agg.PoolSellOrders, func(i, j int) bool {
				return agg.PoolSellOrders[i].Order.ID < agg.PoolSellOrders[j].Order.ID
			})
		} else {
			s.Valid = false
		}
		return e.applySummary(ctx, agg, model.SideSell, s)
	})
	if err != nil {
		return fmt.Errorf("pool order %s %s on %s: %w", o.ID, action, id, err)
	}
	return nil
}

func removePoolOrder(pool []model.PoolOrder, orderID string) []model.PoolOrder {
	out := pool[:0]
	for _, p := range pool {
		if p.Order.ID != orderID {
			out = append(out, p)
		}
	}
	return out
}

// OnActivity records sell activities as the item's last sale. A reverted sale clears the
// last sale it matches.
func (e *Engine) OnActivity(ctx context.Context, a model.Activity) error {
	if a.Type != model.ActivitySell || a.ItemID == nil {
		return nil
	}
	sale := &model.Sale{
		Date:     a.Date.UTC(),
		Buyer:    a.To,
		Value:    a.Value,
		Price:    a.Price,
		Currency: a.Currency,
	}
	id := model.ItemAggregateID(*a.ItemID)

	err := e.update(ctx, id, func(agg *model.Aggregate) error {
		if a.Reverted {
			if agg.LastSale.Equal(sale) {
				agg.LastSale = nil
			}
			return nil
		}
		if agg.LastSale == nil || sale.Date.After(agg.LastSale.Date) {
			agg.LastSale = sale
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("activity %s on %s: %w", a.ID, id, err)
	}
	return nil
}

// RefreshCurrencies re-derives the overall bests of id with current exchange rates.
func (e *Engine) RefreshCurrencies(ctx context.Context, id model.AggregateID) error {
	return e.update(ctx, id, func(*model.Aggregate) error { return nil })
}

// OnCurrencyRateChanged refreshes every multicurrency aggregate on chain and returns how
// many were visited.
func (e *Engine) OnCurrencyRateChanged(ctx context.Context, chain model.Blockchain) (int, error) {
	var (
		visited int
		errs    []error
	)
	for _, kind := range []model.AggregateKind{model.KindItem, model.KindOwnership, model.KindCollection} {
		after := ""
		for {
			if err := ctx.Err(); err != nil {
				return visited, err
			}
			page, err := e.store.FindMulticurrency(ctx, MulticurrencyQuery{
				Kind:       kind,
				Blockchain: chain,
				After:      after,
				Limit:      sweepPageSize,
			})
			if err != nil {
				return visited, fmt.Errorf("list multicurrency %s on %s: %w", kind, chain, err)
			}
			for _, agg := range page {
				visited++
				if err := e.RefreshCurrencies(ctx, agg.ID); err != nil {
					errs = append(errs, err)
					e.mark(ctx, agg.ID, err.Error())
				}
			}
			if len(page) < sweepPageSize {
				break
			}
			after = page[len(page)-1].ID.ID.String()
		}
	}

	e.logger.Info("currency rate sweep complete",
		"blockchain", chain,
		"visited", visited,
		"failed", len(errs),
	)
	return visited, errors.Join(errs...)
}

// Recompute rebuilds id's best orders from its chain's order source. When nothing
// changed, the stored state is published again so a lost event is recovered.
func (e *Engine) Recompute(ctx context.Context, id model.AggregateID) error {
	chain := id.ID.Blockchain
	src, ok := e.sources[chain]
	if !ok {
		return fmt.Errorf("recompute %s: %w %s", id, ErrNoSource, chain)
	}

	sides := []model.OrderSide{model.SideSell, model.SideBid}
	if id.Kind == model.KindOwnership {
		sides = sides[:1]
	}

	err := e.run(ctx, id, func(agg *model.Aggregate) error {
		if id.Kind == model.KindOwnership {
			if _, owner, ok := model.SplitOwnershipID(id.ID); ok {
				agg.Owner = owner
			}
		}

		var fresh model.BestOrders
		for _, side := range sides {
			if err := e.rebuild(ctx, agg, &fresh, src, side, ""); err != nil {
				return err
			}
		}

		var origins map[string]*model.BestOrders
		for _, origin := range e.cfg.Origins[chain] {
			b := &model.BestOrders{}
			for _, side := range sides {
				if err := e.rebuild(ctx, agg, b, src, side, origin); err != nil {
					return err
				}
			}
			if b.IsEmpty() {
				continue
			}
			if origins == nil {
				origins = make(map[string]*model.BestOrders)
			}
			origins[origin] = b
		}

		agg.BestOrders = fresh
		agg.Origins = origins
		return nil
	}, true)
	if err != nil {
		return fmt.Errorf("recompute %s: %w", id, err)
	}
	return nil
}
