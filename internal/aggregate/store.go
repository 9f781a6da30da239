package aggregate

import (
	"context"
	"sort"
	"sync"

	"github.com/rickgao/union-data/internal/model"
)

// MulticurrencyQuery pages through aggregates whose bests span several currencies.
type MulticurrencyQuery struct {
	Kind       model.AggregateKind
	Blockchain model.Blockchain
	// After is the entity id string to continue after; empty starts from the beginning.
	After string
	Limit int
}

// Store persists aggregates with optimistic concurrency.
type Store interface {
	// Get returns nil, nil when the aggregate does not exist.
	Get(ctx context.Context, id model.AggregateID) (*model.Aggregate, error)

	// Save writes agg if the stored version equals agg.Version (0 = must not exist)
	// and returns the stored view with the incremented version.
	Save(ctx context.Context, agg *model.Aggregate) (*model.Aggregate, error)

	// Delete removes the aggregate if its stored version equals version.
	Delete(ctx context.Context, id model.AggregateID, version int64) error

	// FindByIDs returns the aggregates that exist among ids, in no particular order.
	FindByIDs(ctx context.Context, ids []model.AggregateID) ([]*model.Aggregate, error)

	// FindMulticurrency returns up to q.Limit multicurrency aggregates ordered by entity id.
	FindMulticurrency(ctx context.Context, q MulticurrencyQuery) ([]*model.Aggregate, error)
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[model.AggregateID]*model.Aggregate
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[model.AggregateID]*model.Aggregate)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id model.AggregateID) (*model.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[id].Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, agg *model.Aggregate) (*model.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[agg.ID]
	if agg.Version == 0 && ok {
		return nil, ErrVersionConflict
	}
	if agg.Version > 0 && (!ok || cur.Version != agg.Version) {
		return nil, ErrVersionConflict
	}

	saved := agg.Clone()
	saved.Version = agg.Version + 1
	s.data[agg.ID] = saved
	return saved.Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id model.AggregateID, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[id]
	if !ok || cur.Version != version {
		return ErrVersionConflict
	}
	delete(s.data, id)
	return nil
}

// FindByIDs implements Store.
func (s *MemoryStore) FindByIDs(_ context.Context, ids []model.AggregateID) ([]*model.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Aggregate, 0, len(ids))
	for _, id := range ids {
		if agg, ok := s.data[id]; ok {
			out = append(out, agg.Clone())
		}
	}
	return out, nil
}

// FindMulticurrency implements Store.
func (s *MemoryStore) FindMulticurrency(_ context.Context, q MulticurrencyQuery) ([]*model.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Aggregate
	for id, agg := range s.data {
		if id.Kind != q.Kind || !agg.Multicurrency || id.ID.Blockchain != q.Blockchain {
			continue
		}
		if id.ID.String() <= q.After {
			continue
		}
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.ID.String() < out[j].ID.ID.String() })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out, nil
}

// Len returns the number of stored aggregates.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
