package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rickgao/union-data/internal/model"
)

func ordersPath(side model.OrderSide, collection bool) string {
	book := "sell"
	if side == model.SideBid {
		book = "bids"
	}
	target := "byItem"
	if collection {
		target = "byCollection"
	}
	return "/v0.1/orders/" + book + "/" + target
}

func (c *Client) ordersQuery(req OrdersRequest) url.Values {
	query := url.Values{}
	if req.Collection {
		query.Set("collectionId", req.Target)
	} else {
		query.Set("itemId", req.Target)
	}
	if req.Currency != "" {
		query.Set("currencyId", req.Currency)
	}
	if req.Origin != "" {
		query.Set("origin", req.Origin)
	}
	if req.Maker != "" {
		query.Set("maker", req.Maker)
	}
	if req.Cursor != "" {
		query.Set(c.dialect.CursorParam, req.Cursor)
	}
	if req.Size > 0 {
		query.Set(c.dialect.SizeParam, strconv.Itoa(c.dialect.clampSize(req.Size)))
	}
	query.Set("status", string(model.StatusActive))
	return query
}

// ListOrders fetches one page of active orders on one side of a target's book,
// best first (ascending price for sells, descending for bids).
func (c *Client) ListOrders(ctx context.Context, side model.OrderSide, req OrdersRequest) ([]model.Order, string, error) {
	raw, next, err := getPage[APIOrder](ctx, c, ordersPath(side, req.Collection), "orders", c.ordersQuery(req))
	if err != nil {
		return nil, "", fmt.Errorf("list %s orders for %s: %w", side, req.Target, err)
	}
	out := make([]model.Order, len(raw))
	for i := range raw {
		out[i] = raw[i].ToModel(c.chain)
		if out[i].Side == "" {
			out[i].Side = side
		}
	}
	return out, next, nil
}

// Currencies lists the currencies with active orders on one side of a target.
func (c *Client) Currencies(ctx context.Context, side model.OrderSide, target string, collection bool) ([]string, error) {
	query := url.Values{}
	query.Set("side", string(side))
	if collection {
		query.Set("collectionId", target)
	} else {
		query.Set("itemId", target)
	}

	var resp CurrenciesResponse
	if err := c.get(ctx, "/v0.1/orders/currencies", query, &resp); err != nil {
		return nil, fmt.Errorf("get currencies for %s: %w", target, err)
	}
	return resp.Currencies, nil
}
