package model

import "time"

// BestOrders holds overall and per-currency best orders for one scope.
type BestOrders struct {
	BestSellOrder  *OrderSummary            `json:"bestSellOrder,omitempty"`
	BestBidOrder   *OrderSummary            `json:"bestBidOrder,omitempty"`
	BestSellOrders map[string]*OrderSummary `json:"bestSellOrders,omitempty"`
	BestBidOrders  map[string]*OrderSummary `json:"bestBidOrders,omitempty"`
}

// IsEmpty reports whether no best order is recorded.
func (b *BestOrders) IsEmpty() bool {
	if b == nil {
		return true
	}
	return b.BestSellOrder == nil && b.BestBidOrder == nil &&
		len(b.BestSellOrders) == 0 && len(b.BestBidOrders) == 0
}

// Slots returns the currency map for side, allocating it if needed.
func (b *BestOrders) Slots(side OrderSide) map[string]*OrderSummary {
	if side == SideBid {
		if b.BestBidOrders == nil {
			b.BestBidOrders = make(map[string]*OrderSummary)
		}
		return b.BestBidOrders
	}
	if b.BestSellOrders == nil {
		b.BestSellOrders = make(map[string]*OrderSummary)
	}
	return b.BestSellOrders
}

// Best returns the overall best order for side.
func (b *BestOrders) Best(side OrderSide) *OrderSummary {
	if side == SideBid {
		return b.BestBidOrder
	}
	return b.BestSellOrder
}

// Equal compares by content.
func (b *BestOrders) Equal(o *BestOrders) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return b.IsEmpty() == o.IsEmpty()
	}
	return b.BestSellOrder.Equal(o.BestSellOrder) &&
		b.BestBidOrder.Equal(o.BestBidOrder) &&
		summaryMapEqual(b.BestSellOrders, o.BestSellOrders) &&
		summaryMapEqual(b.BestBidOrders, o.BestBidOrders)
}

// Clone returns a deep copy.
func (b *BestOrders) Clone() *BestOrders {
	if b == nil {
		return nil
	}
	return &BestOrders{
		BestSellOrder:  b.BestSellOrder.Clone(),
		BestBidOrder:   b.BestBidOrder.Clone(),
		BestSellOrders: cloneSummaryMap(b.BestSellOrders),
		BestBidOrders:  cloneSummaryMap(b.BestBidOrders),
	}
}

// Currencies returns the number of distinct currencies with a best order.
func (b *BestOrders) Currencies() int {
	seen := make(map[string]struct{}, len(b.BestSellOrders)+len(b.BestBidOrders))
	for c := range b.BestSellOrders {
		seen[c] = struct{}{}
	}
	for c := range b.BestBidOrders {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// PoolOrder is a sell order included into an item by an AMM pool.
type PoolOrder struct {
	Currency string       `json:"currency"`
	Order    OrderSummary `json:"order"`
}

// Aggregate is the persisted best-order summary for one entity.
type Aggregate struct {
	ID    AggregateID `json:"id"`
	Owner string      `json:"owner,omitempty"`

	BestOrders

	Origins        map[string]*BestOrders `json:"origins,omitempty"`
	PoolSellOrders []PoolOrder            `json:"poolSellOrders,omitempty"`
	LastSale       *Sale                  `json:"lastSale,omitempty"`
	Multicurrency  bool                   `json:"multicurrency"`

	Version       int64     `json:"version"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// NewAggregate returns an empty, unsaved aggregate.
func NewAggregate(id AggregateID) *Aggregate {
	return &Aggregate{ID: id}
}

// IsEmpty reports whether the aggregate carries no enrichment data.
func (a *Aggregate) IsEmpty() bool {
	if !a.BestOrders.IsEmpty() || len(a.PoolSellOrders) > 0 || a.LastSale != nil {
		return false
	}
	for _, o := range a.Origins {
		if !o.IsEmpty() {
			return false
		}
	}
	return true
}

// Origin returns the per-origin bests, allocating them if needed.
func (a *Aggregate) Origin(origin string) *BestOrders {
	if a.Origins == nil {
		a.Origins = make(map[string]*BestOrders)
	}
	b, ok := a.Origins[origin]
	if !ok {
		b = &BestOrders{}
		a.Origins[origin] = b
	}
	return b
}

// ContentEqual compares two aggregates ignoring version, timestamps and cached USD prices.
func (a *Aggregate) ContentEqual(o *Aggregate) bool {
	if a == nil || o == nil {
		return a == o
	}
	if a.ID != o.ID || a.Owner != o.Owner || a.Multicurrency != o.Multicurrency {
		return false
	}
	if !a.BestOrders.Equal(&o.BestOrders) || !a.LastSale.Equal(o.LastSale) {
		return false
	}
	if len(a.PoolSellOrders) != len(o.PoolSellOrders) {
		return false
	}
	for i := range a.PoolSellOrders {
		if a.PoolSellOrders[i].Currency != o.PoolSellOrders[i].Currency ||
			!a.PoolSellOrders[i].Order.Equal(&o.PoolSellOrders[i].Order) {
			return false
		}
	}
	return originsEqual(a.Origins, o.Origins)
}

// Clone returns a deep copy.
func (a *Aggregate) Clone() *Aggregate {
	if a == nil {
		return nil
	}
	c := *a
	c.BestOrders = *a.BestOrders.Clone()
	if a.Origins != nil {
		c.Origins = make(map[string]*BestOrders, len(a.Origins))
		for k, v := range a.Origins {
			c.Origins[k] = v.Clone()
		}
	}
	if a.PoolSellOrders != nil {
		c.PoolSellOrders = make([]PoolOrder, len(a.PoolSellOrders))
		for i, p := range a.PoolSellOrders {
			c.PoolSellOrders[i] = PoolOrder{Currency: p.Currency, Order: *p.Order.Clone()}
		}
	}
	if a.LastSale != nil {
		s := *a.LastSale
		c.LastSale = &s
	}
	return &c
}

func summaryMapEqual(a, b map[string]*OrderSummary) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !v.Equal(b[k]) {
			return false
		}
	}
	return true
}

func cloneSummaryMap(m map[string]*OrderSummary) map[string]*OrderSummary {
	if m == nil {
		return nil
	}
	c := make(map[string]*OrderSummary, len(m))
	for k, v := range m {
		c[k] = v.Clone()
	}
	return c
}

func originsEqual(a, b map[string]*BestOrders) bool {
	nonEmpty := func(m map[string]*BestOrders) int {
		n := 0
		for _, v := range m {
			if !v.IsEmpty() {
				n++
			}
		}
		return n
	}
	if nonEmpty(a) != nonEmpty(b) {
		return false
	}
	for k, v := range a {
		if v.IsEmpty() {
			continue
		}
		if !v.Equal(b[k]) {
			return false
		}
	}
	return true
}
