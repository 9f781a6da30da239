package aggregate

import (
	"context"
	"sort"

	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/order"
)

// query builds the order listing query for one slot of agg.
func (e *Engine) query(agg *model.Aggregate, side model.OrderSide, currency, origin string) order.Query {
	q := order.Query{
		Target:   agg.ID.ID,
		Side:     side,
		Currency: currency,
		Origin:   origin,
	}
	switch agg.ID.Kind {
	case model.KindCollection:
		q.Collection = true
	case model.KindOwnership:
		if item, owner, ok := model.SplitOwnershipID(agg.ID.ID); ok {
			q.Target = item
			q.Maker = owner
		}
	}
	return q
}

// applyOrder folds o into every scope of agg it belongs to.
func (e *Engine) applyOrder(ctx context.Context, agg *model.Aggregate, o model.Order) error {
	if agg.ID.Kind == model.KindOwnership && o.Side != model.SideSell {
		return nil
	}
	return e.applySummary(ctx, agg, o.Side, e.validator.Summary(o, agg.Owner))
}

func (e *Engine) applySummary(ctx context.Context, agg *model.Aggregate, side model.OrderSide, s *model.OrderSummary) error {
	if err := e.applySlot(ctx, agg, &agg.BestOrders, side, "", s); err != nil {
		return err
	}
	for _, origin := range e.cfg.Origins[agg.ID.ID.Blockchain] {
		if !hasOrigin(s.Origins, origin) {
			continue
		}
		if err := e.applySlot(ctx, agg, agg.Origin(origin), side, origin, s); err != nil {
			return err
		}
	}
	return nil
}

// applySlot updates the currency slot of scope for s.
func (e *Engine) applySlot(ctx context.Context, agg *model.Aggregate, scope *model.BestOrders, side model.OrderSide, origin string, s *model.OrderSummary) error {
	slots := scope.Slots(side)
	cur := slots[s.Currency]

	switch {
	case cur != nil && cur.ID == s.ID && s.LastUpdatedAt.Before(cur.LastUpdatedAt):
		// an older copy of the order already in the slot
	case cur != nil && cur.ID == s.ID:
		if s.Valid && !e.cmp.Better(ctx, side, cur, s) {
			slots[s.Currency] = s.Clone()
			return nil
		}
		// The current best got worse or went away; another order may now lead.
		exclude := ""
		if !s.Valid {
			exclude = s.ID
		}
		found, err := e.search(ctx, agg, e.query(agg, side, s.Currency, origin), exclude)
		if err != nil {
			return err
		}
		var candidate *model.OrderSummary
		if s.Valid {
			candidate = s
		}
		if best := e.cmp.Best(ctx, side, found, candidate); best != nil {
			slots[s.Currency] = best.Clone()
		} else {
			delete(slots, s.Currency)
		}
	case !s.Valid:
	case cur == nil || e.cmp.Better(ctx, side, s, cur):
		slots[s.Currency] = s.Clone()
	}
	return nil
}

// search finds the best valid order for q from the chain's source and the pool.
func (e *Engine) search(ctx context.Context, agg *model.Aggregate, q order.Query, exclude string) (*model.OrderSummary, error) {
	var candidates []*model.OrderSummary

	if src, ok := e.sources[q.Target.Blockchain]; ok {
		owner := agg.Owner
		valid := func(o model.Order) bool {
			return o.ID != exclude && e.validator.Valid(o, owner)
		}
		o, found, err := e.searcher.FindBest(ctx, src, q, valid)
		if err != nil {
			return nil, err
		}
		if found {
			candidates = append(candidates, e.validator.Summary(o, owner))
		}
	} else {
		e.logger.Debug("no order source, search limited to pool", "blockchain", q.Target.Blockchain)
	}

	if q.Side == model.SideSell {
		for i := range agg.PoolSellOrders {
			p := &agg.PoolSellOrders[i]
			if p.Currency != q.Currency || p.Order.ID == exclude {
				continue
			}
			if q.Origin != "" && !hasOrigin(p.Order.Origins, q.Origin) {
				continue
			}
			candidates = append(candidates, &p.Order)
		}
	}

	return e.cmp.Best(ctx, q.Side, candidates...), nil
}

// rebuild fills scope's side from scratch: one search per currency the source or pool offers.
func (e *Engine) rebuild(ctx context.Context, agg *model.Aggregate, scope *model.BestOrders, src order.Source, side model.OrderSide, origin string) error {
	base := e.query(agg, side, "", origin)
	listed, err := src.Currencies(ctx, base)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(listed))
	for _, c := range listed {
		seen[c] = struct{}{}
	}
	if side == model.SideSell {
		for _, p := range agg.PoolSellOrders {
			if origin == "" || hasOrigin(p.Order.Origins, origin) {
				seen[p.Currency] = struct{}{}
			}
		}
	}
	currencies := make([]string, 0, len(seen))
	for c := range seen {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	for _, c := range currencies {
		q := base
		q.Currency = c
		best, err := e.search(ctx, agg, q, "")
		if err != nil {
			return err
		}
		if best != nil {
			scope.Slots(side)[c] = best.Clone()
		}
	}
	return nil
}

// derive recomputes the overall bests and the flags that follow from the slots.
func (e *Engine) derive(ctx context.Context, agg *model.Aggregate) {
	chain := agg.ID.ID.Blockchain
	e.deriveScope(ctx, chain, &agg.BestOrders)
	for name, b := range agg.Origins {
		e.deriveScope(ctx, chain, b)
		if b.IsEmpty() {
			delete(agg.Origins, name)
		}
	}
	if len(agg.Origins) == 0 {
		agg.Origins = nil
	}
	if len(agg.PoolSellOrders) == 0 {
		agg.PoolSellOrders = nil
	}
	agg.Multicurrency = agg.BestOrders.Currencies() > 1
}

func (e *Engine) deriveScope(ctx context.Context, chain model.Blockchain, b *model.BestOrders) {
	if len(b.BestSellOrders) == 0 {
		b.BestSellOrders = nil
	}
	if len(b.BestBidOrders) == 0 {
		b.BestBidOrders = nil
	}
	b.BestSellOrder = e.cmp.Best(ctx, model.SideSell, sortedSlots(b.BestSellOrders, nil)...).Clone()
	b.BestBidOrder = e.cmp.Best(ctx, model.SideBid, sortedSlots(b.BestBidOrders, e.bidAllowed(chain))...).Clone()
}

// bidAllowed returns the filter for currencies eligible as the overall best bid, or nil for all.
func (e *Engine) bidAllowed(chain model.Blockchain) func(string) bool {
	list, ok := e.cfg.BidCurrencies[chain]
	if !ok || len(list) == 0 {
		return nil
	}
	return func(c string) bool {
		for _, x := range list {
			if x == c {
				return true
			}
		}
		return false
	}
}

func sortedSlots(m map[string]*model.OrderSummary, allow func(string) bool) []*model.OrderSummary {
	keys := make([]string, 0, len(m))
	for k := range m {
		if allow == nil || allow(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]*model.OrderSummary, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func hasOrigin(origins []string, origin string) bool {
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}

// clearUSD drops cached USD prices so the next comparison uses current rates.
func clearUSD(agg *model.Aggregate) {
	clearScope := func(b *model.BestOrders) {
		for _, m := range []map[string]*model.OrderSummary{b.BestSellOrders, b.BestBidOrders} {
			for _, s := range m {
				s.PriceUSD = nil
			}
		}
		if b.BestSellOrder != nil {
			b.BestSellOrder.PriceUSD = nil
		}
		if b.BestBidOrder != nil {
			b.BestBidOrder.PriceUSD = nil
		}
	}
	clearScope(&agg.BestOrders)
	for _, b := range agg.Origins {
		clearScope(b)
	}
	for i := range agg.PoolSellOrders {
		agg.PoolSellOrders[i].Order.PriceUSD = nil
	}
}
