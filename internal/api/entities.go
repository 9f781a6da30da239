package api

import (
	"context"
	"fmt"

	"github.com/rickgao/union-data/internal/model"
)

// ListItems fetches one page of items.
func (c *Client) ListItems(ctx context.Context, req PageRequest) ([]model.Item, string, error) {
	raw, next, err := getPage[APIItem](ctx, c, "/v0.1/items/all", "items", c.pageQuery(req))
	if err != nil {
		return nil, "", fmt.Errorf("list items: %w", err)
	}
	out := make([]model.Item, len(raw))
	for i := range raw {
		out[i] = raw[i].ToModel(c.chain)
	}
	return out, next, nil
}

// ListOwnerships fetches one page of ownerships.
func (c *Client) ListOwnerships(ctx context.Context, req PageRequest) ([]model.Ownership, string, error) {
	raw, next, err := getPage[APIOwnership](ctx, c, "/v0.1/ownerships/all", "ownerships", c.pageQuery(req))
	if err != nil {
		return nil, "", fmt.Errorf("list ownerships: %w", err)
	}
	out := make([]model.Ownership, len(raw))
	for i := range raw {
		out[i] = raw[i].ToModel(c.chain)
	}
	return out, next, nil
}

// ListCollections fetches one page of collections.
func (c *Client) ListCollections(ctx context.Context, req PageRequest) ([]model.Collection, string, error) {
	raw, next, err := getPage[APICollection](ctx, c, "/v0.1/collections/all", "collections", c.pageQuery(req))
	if err != nil {
		return nil, "", fmt.Errorf("list collections: %w", err)
	}
	out := make([]model.Collection, len(raw))
	for i := range raw {
		out[i] = raw[i].ToModel(c.chain)
	}
	return out, next, nil
}

// ListActivities fetches one page of activities.
func (c *Client) ListActivities(ctx context.Context, req PageRequest) ([]model.Activity, string, error) {
	raw, next, err := getPage[APIActivity](ctx, c, "/v0.1/activities/all", "activities", c.pageQuery(req))
	if err != nil {
		return nil, "", fmt.Errorf("list activities: %w", err)
	}
	out := make([]model.Activity, len(raw))
	for i := range raw {
		out[i] = raw[i].ToModel(c.chain)
	}
	return out, next, nil
}
