package aggregate

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/union-data/internal/bus"
	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/order"
)

var (
	itemX = model.NewEntityID(model.Ethereum, "0xabc:1")
	collY = model.NewEntityID(model.Ethereum, "0xcoll")
)

// book is an order source backed by a slice, listing best first.
type book struct {
	mu     sync.Mutex
	orders []model.Order
	calls  int
}

func (b *book) add(orders ...model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, orders...)
}

func (b *book) matches(q order.Query) []model.Order {
	var out []model.Order
	for _, o := range b.orders {
		if o.Side != q.Side || o.Status != model.StatusActive {
			continue
		}
		target := o.ItemID
		if q.Collection {
			target = o.CollectionID
		}
		if target == nil || *target != q.Target {
			continue
		}
		if q.Currency != "" && o.Currency != q.Currency {
			continue
		}
		if q.Maker != "" && o.Maker != q.Maker {
			continue
		}
		if q.Origin != "" && !o.HasOrigin(q.Origin) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Price.Cmp(out[j].Price); c != 0 {
			if q.Side == model.SideBid {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (b *book) ListOrders(_ context.Context, q order.Query, cursor string, size int) ([]model.Order, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++

	all := b.matches(q)
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	if start >= len(all) {
		return nil, "", nil
	}
	end := start + size
	if end >= len(all) {
		return all[start:], "", nil
	}
	return all[start:end], strconv.Itoa(end), nil
}

func (b *book) Currencies(_ context.Context, q order.Query) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, o := range b.matches(q) {
		if !seen[o.Currency] {
			seen[o.Currency] = true
			out = append(out, o.Currency)
		}
	}
	sort.Strings(out)
	return out, nil
}

type recordingMarker struct {
	mu  sync.Mutex
	ids []model.AggregateID
}

func (m *recordingMarker) Mark(_ context.Context, id model.AggregateID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

// hookStore runs beforeSave once, ahead of the first Save, and can rewrite saved views.
type hookStore struct {
	Store
	mu         sync.Mutex
	saves      int
	beforeSave func()
	afterSave  func(*model.Aggregate)
	alwaysFail bool
}

func (s *hookStore) Save(ctx context.Context, agg *model.Aggregate) (*model.Aggregate, error) {
	s.mu.Lock()
	s.saves++
	hook := s.beforeSave
	s.beforeSave = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if s.alwaysFail {
		return nil, ErrVersionConflict
	}
	saved, err := s.Store.Save(ctx, agg)
	if err == nil && s.afterSave != nil {
		s.afterSave(saved)
	}
	return saved, err
}

type mutableRates struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
}

func (r *mutableRates) set(currency, rate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[currency] = decimal.RequireFromString(rate)
}

func (r *mutableRates) Rate(_ context.Context, _ model.Blockchain, currency string, _ time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rate, ok := r.rates[currency]
	if !ok {
		return decimal.Zero, errors.New("no rate")
	}
	return rate, nil
}

type harness struct {
	store  *MemoryStore
	bus    *bus.Memory
	book   *book
	marker *recordingMarker
	engine *Engine
}

func newHarness(t *testing.T, cfg Config, wrap func(Store) Store, cmp *order.Comparator) *harness {
	t.Helper()
	h := &harness{
		store:  NewMemoryStore(),
		bus:    bus.NewMemory(16),
		book:   &book{},
		marker: &recordingMarker{},
	}
	var store Store = h.store
	if wrap != nil {
		store = wrap(store)
	}
	h.engine = NewEngine(Deps{
		Store:      store,
		Publisher:  h.bus,
		Marker:     h.marker,
		Comparator: cmp,
		Sources:    map[model.Blockchain]order.Source{model.Ethereum: h.book},
	}, cfg, nil)
	return h
}

func (h *harness) get(t *testing.T, id model.AggregateID) *model.Aggregate {
	t.Helper()
	agg, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return agg
}

func eventsFor(events []bus.Event, id model.AggregateID) []bus.Event {
	var out []bus.Event
	for _, ev := range events {
		if ev.Kind == id.Kind && ev.EntityID == id.ID {
			out = append(out, ev)
		}
	}
	return out
}

func itemOrder(id string, side model.OrderSide, maker, currency, price string) model.Order {
	item := itemX
	return model.Order{
		ID:         id,
		Blockchain: model.Ethereum,
		Side:       side,
		Status:     model.StatusActive,
		Maker:      maker,
		ItemID:     &item,
		Currency:   currency,
		Price:      decimal.RequireFromString(price),
		MakeStock:  decimal.NewFromInt(1),
	}
}

func sell(id, maker, currency, price string) model.Order {
	return itemOrder(id, model.SideSell, maker, currency, price)
}

func bid(id, maker, currency, price string) model.Order {
	return itemOrder(id, model.SideBid, maker, currency, price)
}

func collectionSell(id, currency, price string) model.Order {
	coll := collY
	o := sell(id, "carol", currency, price)
	o.ItemID = nil
	o.CollectionID = &coll
	return o
}

func cancelled(o model.Order) model.Order {
	o.Status = model.StatusCancelled
	return o
}

var itemAgg = model.ItemAggregateID(itemX)

func TestTargets(t *testing.T) {
	assert.Equal(t, []Target{
		{ID: itemAgg},
		{ID: model.OwnershipAggregateID(itemX, "alice"), Owner: "alice"},
	}, Targets(sell("a", "alice", "ETH", "1")))
	assert.Equal(t, []Target{{ID: itemAgg}}, Targets(bid("b", "bob", "ETH", "1")))
	assert.Equal(t, []Target{{ID: model.CollectionAggregateID(collY)}}, Targets(collectionSell("c", "ETH", "1")))
	assert.Empty(t, Targets(model.Order{ID: "orphan"}))
}

func TestCheaperSellReplacesBest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)

	a := sell("A", "alice", "ETH", "10")
	h.book.add(a)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	before := h.get(t, itemAgg)
	require.NotNil(t, before)
	h.bus.Drain()

	b := sell("B", "bob", "ETH", "9")
	h.book.add(b)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, b))

	after := h.get(t, itemAgg)
	assert.Equal(t, before.Version+1, after.Version)
	require.NotNil(t, after.BestSellOrder)
	assert.Equal(t, "B", after.BestSellOrder.ID)

	events := eventsFor(h.bus.Drain(), itemAgg)
	require.Len(t, events, 1)
	assert.Equal(t, bus.EventUpdate, events[0].Type)
	assert.Equal(t, "B", events[0].Aggregate.BestSellOrder.ID)
	assert.Equal(t, after.Version, events[0].Aggregate.Version)
}

func TestNonImprovingOrderIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)

	a := sell("A", "alice", "ETH", "10")
	h.book.add(a)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	before := h.get(t, itemAgg)
	h.bus.Drain()
	saved := h.engine.Stats().Saved

	c := sell("C", "alice", "ETH", "11")
	h.book.add(c)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, c))
	// Re-delivery of the current best changes nothing either.
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))

	assert.Equal(t, before.Version, h.get(t, itemAgg).Version)
	assert.Empty(t, h.bus.Drain())
	assert.Equal(t, saved, h.engine.Stats().Saved)
	assert.EqualValues(t, 4, h.engine.Stats().Unchanged)
}

func TestConflictRestartsWithoutLosingConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	var hs *hookStore
	h := newHarness(t, DefaultConfig(), func(s Store) Store {
		hs = &hookStore{Store: s}
		return hs
	}, nil)
	rival := NewEngine(Deps{Store: h.store}, DefaultConfig(), nil)

	a := sell("A", "alice", "ETH", "10")
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	h.bus.Drain()

	hs.beforeSave = func() {
		require.NoError(t, rival.OnOrderUpdated(ctx, sell("D", "alice", "WETH", "5")))
	}
	require.NoError(t, h.engine.OnOrderUpdated(ctx, sell("B", "bob", "ETH", "9")))

	agg := h.get(t, itemAgg)
	assert.EqualValues(t, 3, agg.Version)
	require.Contains(t, agg.BestSellOrders, "ETH")
	require.Contains(t, agg.BestSellOrders, "WETH")
	assert.Equal(t, "B", agg.BestSellOrders["ETH"].ID)
	assert.Equal(t, "D", agg.BestSellOrders["WETH"].ID)
	assert.True(t, agg.Multicurrency)
	assert.EqualValues(t, 1, h.engine.Stats().Conflicts)
	assert.Len(t, eventsFor(h.bus.Drain(), itemAgg), 1)
}

func TestSustainedConflict(t *testing.T) {
	var hs *hookStore
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	h := newHarness(t, cfg, func(s Store) Store {
		hs = &hookStore{Store: s, alwaysFail: true}
		return hs
	}, nil)

	err := h.engine.OnOrderUpdated(context.Background(), collectionSell("S", "ETH", "1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSustainedConflict)
	assert.Equal(t, 3, hs.saves)
	assert.Empty(t, h.bus.Drain())
}

func TestInvalidBestIsReplacedFromSource(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)

	a := sell("A", "alice", "ETH", "10")
	b := sell("B", "alice", "ETH", "12")
	h.book.add(a, b)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	require.NoError(t, h.engine.OnOrderUpdated(ctx, b))
	assert.Equal(t, "A", h.get(t, itemAgg).BestSellOrder.ID)

	// The source still lists A as active; the cancellation event must win.
	require.NoError(t, h.engine.OnOrderUpdated(ctx, cancelled(a)))

	agg := h.get(t, itemAgg)
	assert.Equal(t, "B", agg.BestSellOrder.ID)
	owned := h.get(t, model.OwnershipAggregateID(itemX, "alice"))
	require.NotNil(t, owned)
	assert.Equal(t, "B", owned.BestSellOrder.ID)
	assert.Equal(t, "alice", owned.Owner)
}

func TestLastOrderGoneDeletesAggregate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)

	a := sell("A", "alice", "ETH", "10")
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	require.Equal(t, 2, h.store.Len())
	h.bus.Drain()

	require.NoError(t, h.engine.OnOrderUpdated(ctx, cancelled(a)))

	assert.Nil(t, h.get(t, itemAgg))
	assert.Equal(t, 0, h.store.Len())
	events := eventsFor(h.bus.Drain(), itemAgg)
	require.Len(t, events, 1)
	assert.Equal(t, bus.EventDelete, events[0].Type)
	assert.Nil(t, events[0].Aggregate)
	assert.EqualValues(t, 2, h.engine.Stats().Deleted)

	// An invalid order for an absent aggregate creates nothing.
	require.NoError(t, h.engine.OnOrderUpdated(ctx, cancelled(sell("Z", "zed", "ETH", "1"))))
	assert.Equal(t, 0, h.store.Len())
}

func TestWorseUpdateOfCurrentBestSearchesAgain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)

	a := sell("A", "alice", "ETH", "10")
	b := sell("B", "alice", "ETH", "12")
	h.book.add(b)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	require.NoError(t, h.engine.OnOrderUpdated(ctx, b))

	repriced := sell("A", "alice", "ETH", "15")
	h.book.add(repriced)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, repriced))
	assert.Equal(t, "B", h.get(t, itemAgg).BestSellOrder.ID)
}

func TestBidsAndAllowList(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.BidCurrencies = map[model.Blockchain][]string{model.Ethereum: {"ETH"}}
	h := newHarness(t, cfg, nil, nil)

	require.NoError(t, h.engine.OnOrderUpdated(ctx, bid("X", "bob", "ETH", "1")))
	require.NoError(t, h.engine.OnOrderUpdated(ctx, bid("Y", "bob", "WETH", "100")))
	require.NoError(t, h.engine.OnOrderUpdated(ctx, bid("X2", "bob", "ETH", "2")))

	agg := h.get(t, itemAgg)
	require.NotNil(t, agg.BestBidOrder)
	assert.Equal(t, "X2", agg.BestBidOrder.ID)
	assert.Len(t, agg.BestBidOrders, 2)
	assert.Equal(t, "Y", agg.BestBidOrders["WETH"].ID)
	assert.True(t, agg.Multicurrency)
	assert.Nil(t, h.get(t, model.OwnershipAggregateID(itemX, "bob")))
}

func TestOriginsTrackedSeparately(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Origins = map[model.Blockchain][]string{model.Ethereum: {"0xmarket"}}
	h := newHarness(t, cfg, nil, nil)

	a := sell("A", "alice", "ETH", "10")
	a.Origins = []string{"0xmarket"}
	b := sell("B", "bob", "ETH", "9")
	h.book.add(a, b)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	require.NoError(t, h.engine.OnOrderUpdated(ctx, b))

	agg := h.get(t, itemAgg)
	assert.Equal(t, "B", agg.BestSellOrder.ID)
	require.Contains(t, agg.Origins, "0xmarket")
	assert.Equal(t, "A", agg.Origins["0xmarket"].BestSellOrder.ID)

	require.NoError(t, h.engine.OnOrderUpdated(ctx, cancelled(a)))
	agg = h.get(t, itemAgg)
	assert.Nil(t, agg.Origins)
	assert.Equal(t, "B", agg.BestSellOrder.ID)
}

func TestPoolOrders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)

	a := sell("A", "alice", "ETH", "10")
	h.book.add(a)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))

	pool := sell("P", "0xpool", "ETH", "7")
	require.NoError(t, h.engine.OnPoolOrder(ctx, itemX, pool, PoolInclude))
	agg := h.get(t, itemAgg)
	assert.Equal(t, "P", agg.BestSellOrder.ID)
	require.Len(t, agg.PoolSellOrders, 1)
	assert.Equal(t, "ETH", agg.PoolSellOrders[0].Currency)

	// A rebuilt search keeps the pool order as a candidate.
	require.NoError(t, h.engine.OnOrderUpdated(ctx, cancelled(a)))
	assert.Equal(t, "P", h.get(t, itemAgg).BestSellOrder.ID)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))

	require.NoError(t, h.engine.OnPoolOrder(ctx, itemX, pool, PoolExclude))
	agg = h.get(t, itemAgg)
	assert.Equal(t, "A", agg.BestSellOrder.ID)
	assert.Empty(t, agg.PoolSellOrders)
}

func TestInvalidAggregateIsMarkedNotPublished(t *testing.T) {
	h := newHarness(t, DefaultConfig(), func(s Store) Store {
		return &hookStore{Store: s, afterSave: func(agg *model.Aggregate) {
			agg.BestSellOrder.ID = "ghost"
		}}
	}, nil)

	require.NoError(t, h.engine.OnOrderUpdated(context.Background(), collectionSell("S", "ETH", "1")))

	assert.Empty(t, h.bus.Drain())
	assert.Equal(t, []model.AggregateID{model.CollectionAggregateID(collY)}, h.marker.ids)
	assert.EqualValues(t, 1, h.engine.Stats().Invalid)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)
	a := sell("A", "alice", "ETH", "10")
	s := a.Summary()

	good := model.NewAggregate(itemAgg)
	good.Version = 1
	good.BestSellOrders = map[string]*model.OrderSummary{"ETH": &s}
	good.BestSellOrder = s.Clone()
	require.NoError(t, h.engine.Validate(ctx, good))

	unsaved := good.Clone()
	unsaved.Version = 0
	assert.ErrorIs(t, h.engine.Validate(ctx, unsaved), ErrInvalidAggregate)

	wrongKey := good.Clone()
	wrongKey.BestSellOrders = map[string]*model.OrderSummary{"WETH": s.Clone()}
	assert.ErrorIs(t, h.engine.Validate(ctx, wrongKey), ErrInvalidAggregate)

	invalidSlot := good.Clone()
	invalidSlot.BestSellOrders["ETH"].Valid = false
	assert.ErrorIs(t, h.engine.Validate(ctx, invalidSlot), ErrInvalidAggregate)

	missingBest := good.Clone()
	missingBest.BestSellOrder = nil
	assert.ErrorIs(t, h.engine.Validate(ctx, missingBest), ErrInvalidAggregate)
}

func TestRecompute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)
	h.book.add(
		sell("A", "alice", "ETH", "10"),
		sell("B", "bob", "ETH", "9"),
		sell("W", "alice", "WETH", "3"),
		cancelled(sell("C", "carol", "ETH", "1")),
		bid("X", "bob", "ETH", "2"),
	)

	require.NoError(t, h.engine.Recompute(ctx, itemAgg))
	agg := h.get(t, itemAgg)
	require.NotNil(t, agg)
	assert.EqualValues(t, 1, agg.Version)
	assert.Equal(t, "B", agg.BestSellOrders["ETH"].ID)
	assert.Equal(t, "W", agg.BestSellOrders["WETH"].ID)
	assert.Equal(t, "X", agg.BestBidOrder.ID)
	first := h.bus.Drain()
	require.Len(t, first, 1)

	// Recomputing an up-to-date aggregate saves nothing and repeats the stored event.
	require.NoError(t, h.engine.Recompute(ctx, itemAgg))
	assert.EqualValues(t, 1, h.get(t, itemAgg).Version)
	again := h.bus.Drain()
	require.Len(t, again, 1)
	assert.Equal(t, first[0].EventID, again[0].EventID)
	assert.EqualValues(t, 1, h.engine.Stats().Republished)

	owned := model.OwnershipAggregateID(itemX, "alice")
	require.NoError(t, h.engine.Recompute(ctx, owned))
	agg = h.get(t, owned)
	require.NotNil(t, agg)
	assert.Equal(t, "alice", agg.Owner)
	assert.Equal(t, "A", agg.BestSellOrders["ETH"].ID)
	assert.Nil(t, agg.BestBidOrder)

	err := h.engine.Recompute(ctx, model.ItemAggregateID(model.NewEntityID(model.Flow, "1")))
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestActivityLastSale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)
	item := itemX
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	saleAt := func(at time.Time, price string) model.Activity {
		return model.Activity{
			ID:       model.NewEntityID(model.Ethereum, "act-"+price),
			Type:     model.ActivitySell,
			ItemID:   &item,
			To:       "buyer",
			Value:    decimal.NewFromInt(1),
			Price:    decimal.RequireFromString(price),
			Currency: "ETH",
			Date:     at,
		}
	}

	latest := saleAt(t0.Add(time.Hour), "5")
	require.NoError(t, h.engine.OnActivity(ctx, latest))
	require.NoError(t, h.engine.OnActivity(ctx, saleAt(t0, "4")))
	require.NoError(t, h.engine.OnActivity(ctx, model.Activity{Type: model.ActivityMint, ItemID: &item}))

	agg := h.get(t, itemAgg)
	require.NotNil(t, agg.LastSale)
	assert.True(t, agg.LastSale.Price.Equal(decimal.NewFromInt(5)))
	assert.EqualValues(t, 1, agg.Version)

	latest.Reverted = true
	require.NoError(t, h.engine.OnActivity(ctx, latest))
	assert.Nil(t, h.get(t, itemAgg))
}

func TestCurrencyRateChangeReordersBests(t *testing.T) {
	ctx := context.Background()
	rates := &mutableRates{rates: map[string]decimal.Decimal{}}
	rates.set("ETH", "2000")
	rates.set("WETH", "1000")
	cmp := order.NewComparator(order.NewNormalizer(rates, nil))
	h := newHarness(t, DefaultConfig(), nil, cmp)

	require.NoError(t, h.engine.OnOrderUpdated(ctx, sell("A", "alice", "ETH", "1")))
	require.NoError(t, h.engine.OnOrderUpdated(ctx, sell("W", "alice", "WETH", "1")))
	assert.Equal(t, "W", h.get(t, itemAgg).BestSellOrder.ID)
	h.bus.Drain()

	rates.set("WETH", "3000")
	visited, err := h.engine.OnCurrencyRateChanged(ctx, model.Ethereum)
	require.NoError(t, err)
	assert.Equal(t, 2, visited)

	assert.Equal(t, "A", h.get(t, itemAgg).BestSellOrder.ID)
	assert.Equal(t, "A", h.get(t, model.OwnershipAggregateID(itemX, "alice")).BestSellOrder.ID)
	assert.Len(t, h.bus.Drain(), 2)

	visited, err = h.engine.OnCurrencyRateChanged(ctx, model.Polygon)
	require.NoError(t, err)
	assert.Zero(t, visited)
}

func TestMemoryStoreVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	agg := model.NewAggregate(itemAgg)
	agg.LastSale = &model.Sale{Buyer: "x"}
	saved, err := s.Save(ctx, agg)
	require.NoError(t, err)
	assert.EqualValues(t, 1, saved.Version)

	_, err = s.Save(ctx, agg)
	assert.ErrorIs(t, err, ErrVersionConflict, "second insert of the same id")

	saved.LastSale.Buyer = "y"
	again, err := s.Save(ctx, saved)
	require.NoError(t, err)
	assert.EqualValues(t, 2, again.Version)

	_, err = s.Save(ctx, saved)
	assert.ErrorIs(t, err, ErrVersionConflict, "stale version")

	assert.ErrorIs(t, s.Delete(ctx, itemAgg, 1), ErrVersionConflict)
	require.NoError(t, s.Delete(ctx, itemAgg, 2))
	got, err := s.Get(ctx, itemAgg)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreFindMulticurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		agg := model.NewAggregate(model.ItemAggregateID(model.NewEntityID(model.Ethereum, "t"+strconv.Itoa(i))))
		agg.Multicurrency = i%2 == 0
		_, err := s.Save(ctx, agg)
		require.NoError(t, err)
	}

	page, err := s.FindMulticurrency(ctx, MulticurrencyQuery{Kind: model.KindItem, Blockchain: model.Ethereum, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "t0", page[0].ID.ID.Value)
	assert.Equal(t, "t2", page[1].ID.ID.Value)

	page, err = s.FindMulticurrency(ctx, MulticurrencyQuery{
		Kind: model.KindItem, Blockchain: model.Ethereum, After: page[1].ID.ID.String(), Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "t4", page[0].ID.ID.Value)

	got, err := s.FindByIDs(ctx, []model.AggregateID{
		model.ItemAggregateID(model.NewEntityID(model.Ethereum, "t1")),
		model.ItemAggregateID(model.NewEntityID(model.Ethereum, "missing")),
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOlderOrderUpdateIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := sell("A", "alice", "ETH", "10")
	a.LastUpdatedAt = t1
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	require.NotNil(t, h.get(t, itemAgg))

	gone := cancelled(a)
	gone.LastUpdatedAt = t1.Add(time.Minute)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, gone))
	require.Nil(t, h.get(t, itemAgg))
	h.bus.Drain()

	// the active copy arrives late
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))
	assert.Nil(t, h.get(t, itemAgg))
	assert.Equal(t, 0, h.store.Len())
	assert.Empty(t, h.bus.Drain())
	assert.EqualValues(t, 1, h.engine.Stats().Stale)
}

func TestOlderCopyDoesNotReplaceSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), nil, nil)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := sell("A", "alice", "ETH", "10")
	a.LastUpdatedAt = t1.Add(time.Minute)
	require.NoError(t, h.engine.OnOrderUpdated(ctx, a))

	// bypass the engine's watermark: the slot itself must hold the newer copy
	older := sell("A", "alice", "ETH", "12")
	older.LastUpdatedAt = t1
	require.NoError(t, h.engine.update(ctx, itemAgg, func(agg *model.Aggregate) error {
		return h.engine.applyOrder(ctx, agg, older)
	}))

	agg := h.get(t, itemAgg)
	require.NotNil(t, agg.BestSellOrder)
	assert.True(t, agg.BestSellOrder.Price.Equal(decimal.RequireFromString("10")))
	assert.Equal(t, a.LastUpdatedAt, agg.BestSellOrder.LastUpdatedAt)
}

// flakyPublisher fails its next failures publishes, then records events.
type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	events   []bus.Event
}

func (p *flakyPublisher) Publish(_ context.Context, ev bus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("bus unavailable")
	}
	p.events = append(p.events, ev)
	return nil
}

func TestLostPublishIsRecoveredByRecompute(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	src := &book{}
	marker := &recordingMarker{}
	pub := &flakyPublisher{failures: 1}
	engine := NewEngine(Deps{
		Store:     store,
		Publisher: pub,
		Marker:    marker,
		Sources:   map[model.Blockchain]order.Source{model.Ethereum: src},
	}, DefaultConfig(), nil)

	b := bid("B", "bob", "ETH", "2")
	src.add(b)
	require.Error(t, engine.OnOrderUpdated(ctx, b))

	saved, err := store.Get(ctx, itemAgg)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Empty(t, pub.events)
	assert.Contains(t, marker.ids, itemAgg)

	// a redelivery finds nothing to change
	require.NoError(t, engine.OnOrderUpdated(ctx, b))
	assert.Empty(t, pub.events)

	require.NoError(t, engine.Recompute(ctx, itemAgg))
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, bus.EventUpdate, ev.Type)
	assert.Equal(t, saved.Version, ev.Aggregate.Version)
	assert.Equal(t, bus.TransitionID(itemAgg, saved.Version, bus.EventUpdate), ev.EventID)

	latest, err := store.Get(ctx, itemAgg)
	require.NoError(t, err)
	assert.Equal(t, saved.Version, latest.Version)
}
