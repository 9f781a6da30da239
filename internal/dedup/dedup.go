package dedup

import (
	"container/list"
	"sync"
)

// Set is a bounded, concurrency-safe set of recently seen keys.
// When full, the least recently seen key is evicted.
type Set struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element

	hits   int64
	misses int64
}

// Stats reports lookup counters.
type Stats struct {
	Size   int
	Hits   int64
	Misses int64
}

// New creates a Set holding at most capacity keys. capacity < 1 is treated as 1.
func New(capacity int) *Set {
	if capacity < 1 {
		capacity = 1
	}
	return &Set{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Seen records key and reports whether it was already present.
// Empty keys are never considered duplicates.
func (s *Set) Seen(key string) bool {
	if key == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[key]; ok {
		s.order.MoveToFront(el)
		s.hits++
		return true
	}

	s.misses++
	s.index[key] = s.order.PushFront(key)
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
	return false
}

// Forget removes key so a later delivery is processed again.
func (s *Set) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[key]; ok {
		s.order.Remove(el)
		delete(s.index, key)
	}
}

// Stats returns current counters.
func (s *Set) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Size: s.order.Len(), Hits: s.hits, Misses: s.misses}
}
