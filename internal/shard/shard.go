// Package shard defines the uniform listing contract every per-chain backend
// satisfies, and the immutable registry the merge engine fans out over.
package shard

import (
	"context"
	"fmt"
	"sort"

	"github.com/rickgao/union-data/internal/model"
)

// Page is one page returned by a shard. Next == "" means the shard is exhausted.
type Page[T model.Entity] struct {
	Items []T
	Next  string
}

// Client lists one entity type from one shard. Cursors are opaque to callers.
type Client[T model.Entity] interface {
	ID() string
	List(ctx context.Context, cursor string, size int, sort model.SortOrder) (Page[T], error)
}

// Registry is an immutable set of shard clients keyed by shard id.
type Registry[T model.Entity] struct {
	clients map[string]Client[T]
	ids     []string
}

// NewRegistry builds a registry. Duplicate or empty shard ids are rejected.
func NewRegistry[T model.Entity](clients ...Client[T]) (*Registry[T], error) {
	r := &Registry[T]{clients: make(map[string]Client[T], len(clients))}
	for _, c := range clients {
		id := c.ID()
		if id == "" {
			return nil, fmt.Errorf("shard client with empty id")
		}
		if _, dup := r.clients[id]; dup {
			return nil, fmt.Errorf("duplicate shard id %q", id)
		}
		r.clients[id] = c
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)
	return r, nil
}

// IDs returns all shard ids in sorted order.
func (r *Registry[T]) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Get returns the client for id.
func (r *Registry[T]) Get(id string) (Client[T], bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Select returns the ids in filter that are registered, in sorted order.
// An empty filter selects every shard.
func (r *Registry[T]) Select(filter []string) []string {
	if len(filter) == 0 {
		return r.IDs()
	}
	want := make(map[string]struct{}, len(filter))
	for _, id := range filter {
		want[id] = struct{}{}
	}
	var out []string
	for _, id := range r.ids {
		if _, ok := want[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
