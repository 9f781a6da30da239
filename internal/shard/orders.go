package shard

import (
	"context"

	"github.com/rickgao/union-data/internal/api"
	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/order"
)

// OrderSource adapts an api.Client's order endpoints to order.Source.
type OrderSource struct {
	client *api.Client
}

// NewOrderSource wraps c.
func NewOrderSource(c *api.Client) *OrderSource {
	return &OrderSource{client: c}
}

// ListOrders implements order.Source.
func (s *OrderSource) ListOrders(ctx context.Context, q order.Query, cursor string, size int) ([]model.Order, string, error) {
	return s.client.ListOrders(ctx, q.Side, api.OrdersRequest{
		Target:     q.Target.Value,
		Collection: q.Collection,
		Currency:   q.Currency,
		Origin:     q.Origin,
		Maker:      q.Maker,
		Cursor:     cursor,
		Size:       size,
	})
}

// Currencies implements order.Source.
func (s *OrderSource) Currencies(ctx context.Context, q order.Query) ([]string, error) {
	return s.client.Currencies(ctx, q.Side, q.Target.Value, q.Collection)
}

// OrderSources builds the chain-keyed order source map used by the aggregate engine.
func OrderSources(clients []*api.Client) map[model.Blockchain]order.Source {
	out := make(map[model.Blockchain]order.Source, len(clients))
	for _, c := range clients {
		out[c.Blockchain()] = NewOrderSource(c)
	}
	return out
}
