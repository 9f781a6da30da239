package shard

import (
	"context"

	"github.com/rickgao/union-data/internal/api"
	"github.com/rickgao/union-data/internal/model"
)

type listFunc[T model.Entity] func(ctx context.Context, req api.PageRequest) ([]T, string, error)

// restClient adapts one listing endpoint of an api.Client to Client.
type restClient[T model.Entity] struct {
	id   string
	list listFunc[T]
}

func (c *restClient[T]) ID() string { return c.id }

func (c *restClient[T]) List(ctx context.Context, cursor string, size int, sort model.SortOrder) (Page[T], error) {
	items, next, err := c.list(ctx, api.PageRequest{Cursor: cursor, Size: size, Sort: sort})
	if err != nil {
		return Page[T]{}, err
	}
	return Page[T]{Items: items, Next: next}, nil
}

// Items adapts the item listing of c.
func Items(c *api.Client) Client[model.Item] {
	return &restClient[model.Item]{id: string(c.Blockchain()), list: c.ListItems}
}

// Ownerships adapts the ownership listing of c.
func Ownerships(c *api.Client) Client[model.Ownership] {
	return &restClient[model.Ownership]{id: string(c.Blockchain()), list: c.ListOwnerships}
}

// Collections adapts the collection listing of c.
func Collections(c *api.Client) Client[model.Collection] {
	return &restClient[model.Collection]{id: string(c.Blockchain()), list: c.ListCollections}
}

// Activities adapts the activity listing of c.
func Activities(c *api.Client) Client[model.Activity] {
	return &restClient[model.Activity]{id: string(c.Blockchain()), list: c.ListActivities}
}

// Set bundles the per-entity registries built from the same backends.
type Set struct {
	Items       *Registry[model.Item]
	Ownerships  *Registry[model.Ownership]
	Collections *Registry[model.Collection]
	Activities  *Registry[model.Activity]
}

// NewSet builds every registry over clients.
func NewSet(clients []*api.Client) (*Set, error) {
	var (
		items       []Client[model.Item]
		ownerships  []Client[model.Ownership]
		collections []Client[model.Collection]
		activities  []Client[model.Activity]
	)
	for _, c := range clients {
		items = append(items, Items(c))
		ownerships = append(ownerships, Ownerships(c))
		collections = append(collections, Collections(c))
		activities = append(activities, Activities(c))
	}

	var (
		s   Set
		err error
	)
	if s.Items, err = NewRegistry(items...); err != nil {
		return nil, err
	}
	if s.Ownerships, err = NewRegistry(ownerships...); err != nil {
		return nil, err
	}
	if s.Collections, err = NewRegistry(collections...); err != nil {
		return nil, err
	}
	if s.Activities, err = NewRegistry(activities...); err != nil {
		return nil, err
	}
	return &s, nil
}
