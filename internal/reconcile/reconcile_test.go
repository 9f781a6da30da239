package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/union-data/internal/model"
)

func aggID(v string) model.AggregateID {
	return model.ItemAggregateID(model.NewEntityID(model.Ethereum, v))
}

type fakeRecomputer struct {
	mu     sync.Mutex
	calls  map[model.AggregateID]int
	fail   map[model.AggregateID]bool
	during func(model.AggregateID)
}

func (f *fakeRecomputer) Recompute(_ context.Context, id model.AggregateID) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[model.AggregateID]int)
	}
	f.calls[id]++
	fail := f.fail[id]
	during := f.during
	f.mu.Unlock()

	if during != nil {
		during(id)
	}
	if fail {
		return errors.New("source unavailable")
	}
	return nil
}

func TestMemoryQueueOrderAndIdempotence(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.Mark(ctx, aggID("a"), "first"))
	require.NoError(t, q.Mark(ctx, aggID("b"), "second"))
	require.NoError(t, q.Mark(ctx, aggID("a"), "again"))
	assert.Equal(t, 2, q.Len())

	pending, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, aggID("b"), pending[0].ID)
	assert.Equal(t, aggID("a"), pending[1].ID)
	assert.Equal(t, "again", pending[1].Reason)

	limited, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryQueueDoneKeepsNewerMark(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	require.NoError(t, q.Mark(ctx, aggID("a"), "x"))
	pending, _ := q.Pending(ctx, 1)

	require.NoError(t, q.Mark(ctx, aggID("a"), "re-marked"))
	require.NoError(t, q.Done(ctx, pending[0]))
	assert.Equal(t, 1, q.Len())

	pending, _ = q.Pending(ctx, 1)
	require.NoError(t, q.Done(ctx, pending[0]))
	assert.Equal(t, 0, q.Len())
}

func TestSweepRepairsAndRetriesFailures(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, q.Mark(ctx, aggID(v), "invalid"))
	}
	rec := &fakeRecomputer{fail: map[model.AggregateID]bool{aggID("b"): true}}
	s := NewSweeper(Config{Concurrency: 2, BatchSize: 10}, q, rec, nil)

	res := s.Sweep(ctx)
	assert.Equal(t, SweepResult{Taken: 3, Repaired: 2, Failed: 1}, res)
	assert.Equal(t, 1, q.Len())

	pending, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, aggID("b"), pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "source unavailable", pending[0].Reason)

	rec.mu.Lock()
	rec.fail = nil
	rec.mu.Unlock()
	res = s.Sweep(ctx)
	assert.Equal(t, SweepResult{Taken: 1, Repaired: 1}, res)
	assert.Equal(t, 0, q.Len())
}

func TestSweepDoesNotStarveBehindFailingMarks(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	require.NoError(t, q.Mark(ctx, aggID("poison"), "invalid"))
	require.NoError(t, q.Mark(ctx, aggID("healthy"), "invalid"))

	rec := &fakeRecomputer{fail: map[model.AggregateID]bool{aggID("poison"): true}}
	s := NewSweeper(Config{Concurrency: 1, BatchSize: 1}, q, rec, nil)

	for i := 0; i < 10; i++ {
		s.Sweep(ctx)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.calls[aggID("healthy")])
	assert.Equal(t, 1, q.Len())

	pending, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, aggID("poison"), pending[0].ID)
	assert.Equal(t, 9, pending[0].Attempts)
}

func TestMemoryQueueMarkBatch(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	require.NoError(t, q.MarkBatch(ctx, []model.AggregateID{aggID("a"), aggID("b"), aggID("a")}, "order event failed"))
	assert.Equal(t, 2, q.Len())
}

func TestSweepKeepsMarkAddedDuringRepair(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	require.NoError(t, q.Mark(ctx, aggID("a"), "invalid"))

	rec := &fakeRecomputer{during: func(id model.AggregateID) {
		_ = q.Mark(ctx, id, "changed while repairing")
	}}
	s := NewSweeper(Config{}, q, rec, nil)

	s.Sweep(ctx)
	assert.Equal(t, 1, q.Len())
}

func TestSweepEmptyQueue(t *testing.T) {
	s := NewSweeper(Config{}, NewMemoryQueue(), &fakeRecomputer{}, nil)
	assert.Equal(t, SweepResult{}, s.Sweep(context.Background()))
}

func TestSweeperStartStop(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	require.NoError(t, q.Mark(ctx, aggID("a"), "invalid"))
	rec := &fakeRecomputer{}

	s := NewSweeper(Config{Interval: time.Hour}, q, rec, nil)
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
}
