package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/union-data/internal/model"
)

// Mark is one pending repair.
type Mark struct {
	ID       model.AggregateID
	Reason   string
	Attempts int
	MarkedAt time.Time
}

// Queue holds pending repairs.
type Queue interface {
	// Mark adds or refreshes the repair for id.
	Mark(ctx context.Context, id model.AggregateID, reason string) error
	// Pending returns up to limit marks, fewest failed attempts first, then oldest.
	Pending(ctx context.Context, limit int) ([]Mark, error)
	// Done removes m unless it was marked again after m was read.
	Done(ctx context.Context, m Mark) error
	// Failed records a failed repair attempt for m.
	Failed(ctx context.Context, m Mark, reason string) error
}

// MemoryQueue is a Queue held in process memory.
type MemoryQueue struct {
	mu    sync.Mutex
	marks map[model.AggregateID]Mark
	seq   time.Time
	now   func() time.Time
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{marks: make(map[model.AggregateID]Mark), now: time.Now}
}

// stamp returns a strictly increasing timestamp so refreshes are always visible to Done.
func (q *MemoryQueue) stamp() time.Time {
	t := q.now()
	if !t.After(q.seq) {
		t = q.seq.Add(time.Nanosecond)
	}
	q.seq = t
	return t
}

// Mark implements Queue.
func (q *MemoryQueue) Mark(_ context.Context, id model.AggregateID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := q.marks[id]
	m.ID = id
	m.Reason = reason
	m.MarkedAt = q.stamp()
	q.marks[id] = m
	return nil
}

// MarkBatch marks every id with the same reason.
func (q *MemoryQueue) MarkBatch(ctx context.Context, ids []model.AggregateID, reason string) error {
	for _, id := range ids {
		if err := q.Mark(ctx, id, reason); err != nil {
			return err
		}
	}
	return nil
}

// Pending implements Queue.
func (q *MemoryQueue) Pending(_ context.Context, limit int) ([]Mark, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Mark, 0, len(q.marks))
	for _, m := range q.marks {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts < out[j].Attempts
		}
		return out[i].MarkedAt.Before(out[j].MarkedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Done implements Queue.
func (q *MemoryQueue) Done(_ context.Context, m Mark) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.marks[m.ID]; ok && !cur.MarkedAt.After(m.MarkedAt) {
		delete(q.marks, m.ID)
	}
	return nil
}

// Failed implements Queue.
func (q *MemoryQueue) Failed(_ context.Context, m Mark, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cur, ok := q.marks[m.ID]
	if !ok {
		return nil
	}
	cur.Attempts++
	cur.Reason = reason
	q.marks[m.ID] = cur
	return nil
}

// Len returns the number of pending marks.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.marks)
}
