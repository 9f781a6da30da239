package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/union-data/internal/config"
	"github.com/rickgao/union-data/internal/merge"
	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/shard"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// staticShard serves a fixed, already sorted (newest first) slice with
// integer offset cursors.
type staticShard[T model.Entity] struct {
	id    string
	items []T
	fail  bool
}

func (s *staticShard[T]) ID() string { return s.id }

func (s *staticShard[T]) List(_ context.Context, cur string, size int, _ model.SortOrder) (shard.Page[T], error) {
	if s.fail {
		return shard.Page[T]{}, errors.New("shard down")
	}
	start := 0
	if cur != "" {
		start, _ = strconv.Atoi(cur)
	}
	end := min(start+size, len(s.items))
	page := shard.Page[T]{Items: s.items[start:end]}
	if end < len(s.items) {
		page.Next = strconv.Itoa(end)
	}
	return page, nil
}

type fakeAggregates struct {
	aggs map[model.AggregateID]*model.Aggregate
	err  error
}

func (f *fakeAggregates) Get(_ context.Context, id model.AggregateID) (*model.Aggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.aggs[id], nil
}

func (f *fakeAggregates) FindByIDs(_ context.Context, ids []model.AggregateID) ([]*model.Aggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*model.Aggregate
	for _, id := range ids {
		if a, ok := f.aggs[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func item(chain model.Blockchain, local string, minute int) model.Item {
	return model.Item{
		ID:            model.NewEntityID(chain, local),
		LastUpdatedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

type page struct {
	Total        int          `json:"total"`
	Continuation string       `json:"continuation"`
	Items        []model.Item `json:"items"`
}

type fixture struct {
	eth, poly *staticShard[model.Item]
	aggs      *fakeAggregates
	server    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		eth: &staticShard[model.Item]{id: string(model.Ethereum), items: []model.Item{
			item(model.Ethereum, "a", 5), item(model.Ethereum, "b", 3), item(model.Ethereum, "c", 1),
		}},
		poly: &staticShard[model.Item]{id: string(model.Polygon), items: []model.Item{
			item(model.Polygon, "d", 4), item(model.Polygon, "e", 2),
		}},
		aggs: &fakeAggregates{aggs: map[model.AggregateID]*model.Aggregate{}},
	}

	reg, err := shard.NewRegistry[model.Item](f.eth, f.poly)
	require.NoError(t, err)

	f.server = New(config.HTTPConfig{}, Deps{
		Items:      merge.New(reg, merge.DefaultConfig(), nil),
		Aggregates: f.aggs,
		Checks: map[string]HealthCheck{
			"store": func(context.Context) error { return f.aggs.err },
		},
	}, nil)
	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) page {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID.String()
	}
	return out
}

func TestListItemsWalksContinuation(t *testing.T) {
	f := newFixture(t)

	var all []string
	target := "/v0.1/items/all?size=2"
	for pages := 0; pages < 10; pages++ {
		p := decodePage(t, f.get(t, target))
		assert.Equal(t, len(p.Items), p.Total)
		all = append(all, ids(p.Items)...)
		if p.Continuation == "" {
			break
		}
		target = "/v0.1/items/all?size=2&continuation=" + p.Continuation
	}

	assert.Equal(t, []string{
		"ETHEREUM:a", "POLYGON:d", "ETHEREUM:b", "POLYGON:e", "ETHEREUM:c",
	}, all)
}

func TestListItemsBlockchainFilter(t *testing.T) {
	f := newFixture(t)

	p := decodePage(t, f.get(t, "/v0.1/items/all?blockchains=polygon"))
	assert.Equal(t, []string{"POLYGON:d", "POLYGON:e"}, ids(p.Items))
	assert.Empty(t, p.Continuation)
}

func TestListItemsEnriched(t *testing.T) {
	f := newFixture(t)
	id := model.ItemAggregateID(model.NewEntityID(model.Ethereum, "a"))
	f.aggs.aggs[id] = &model.Aggregate{
		ID: id,
		BestOrders: model.BestOrders{
			BestSellOrder: &model.OrderSummary{ID: "o1", Currency: "ETH", Price: decimal.RequireFromString("1.5")},
		},
		Version: 2,
	}

	p := decodePage(t, f.get(t, "/v0.1/items/all?size=1"))
	require.Len(t, p.Items, 1)
	require.NotNil(t, p.Items[0].BestSellOrder)
	assert.Equal(t, "o1", p.Items[0].BestSellOrder.ID)
	assert.NotEmpty(t, p.Continuation)
}

func TestListItemsDegradesGracefully(t *testing.T) {
	f := newFixture(t)
	f.poly.fail = true
	f.aggs.err = errors.New("db down")

	p := decodePage(t, f.get(t, "/v0.1/items/all?size=10"))
	assert.Equal(t, []string{"ETHEREUM:a", "ETHEREUM:b", "ETHEREUM:c"}, ids(p.Items))
	// the failed shard keeps the stream open
	assert.NotEmpty(t, p.Continuation)
}

func TestListItemsBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		target string
		code   string
	}{
		{"malformed continuation", "/v0.1/items/all?continuation=garbage", CodeBadCursor},
		{"unknown token", "/v0.1/items/all?continuation=ETHEREUM:!nope", CodeBadCursor},
		{"size", "/v0.1/items/all?size=-1", CodeBadRequest},
		{"sort", "/v0.1/items/all?sort=RANDOM", CodeBadRequest},
		{"blockchain", "/v0.1/items/all?blockchains=BITCOIN", CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var env ErrorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestListItemsSortSpellings(t *testing.T) {
	f := newFixture(t)

	latest := decodePage(t, f.get(t, "/v0.1/items/all?size=10"))
	earliest := decodePage(t, f.get(t, "/v0.1/items/all?size=10&sort=EARLIEST_FIRST"))

	for _, spelling := range []string{"EARLIEST", "asc"} {
		p := decodePage(t, f.get(t, "/v0.1/items/all?size=10&sort="+spelling))
		assert.Equal(t, ids(earliest.Items), ids(p.Items), spelling)
	}
	for _, spelling := range []string{"LATEST", "LATEST_FIRST", "desc"} {
		p := decodePage(t, f.get(t, "/v0.1/items/all?size=10&sort="+spelling))
		assert.Equal(t, ids(latest.Items), ids(p.Items), spelling)
	}
}

func TestDisabledListingIsNotRouted(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/v0.1/activities/all").Code)
}

func TestGetAggregate(t *testing.T) {
	f := newFixture(t)
	id := model.OwnershipAggregateID(model.NewEntityID(model.Ethereum, "0xtoken:1"), "0xowner")
	f.aggs.aggs[id] = &model.Aggregate{ID: id, Owner: "0xowner", Version: 4}

	rec := f.get(t, "/v0.1/aggregates/ownership/ETHEREUM:0xtoken:1:0xowner")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var agg model.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, id, agg.ID)
	assert.Equal(t, int64(4), agg.Version)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/v0.1/aggregates/item/ETHEREUM:missing").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v0.1/aggregates/listing/ETHEREUM:x").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v0.1/aggregates/item/nochain").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v0.1/aggregates/ownership/ETHEREUM:noowner").Code)
}

func TestHealthAndVersion(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	f.aggs.err = errors.New("db down")
	rec = f.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")

	rec = f.get(t, "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"goVersion"`)
}
