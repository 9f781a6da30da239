package bus

import (
	"context"

	"github.com/rickgao/union-data/internal/buffer"
)

// Memory is an in-process bus. Published events queue in an unbounded buffer
// until received.
type Memory struct {
	events *buffer.Growable[Event]
}

// NewMemory creates an in-process bus.
func NewMemory(initialCapacity int) *Memory {
	return &Memory{events: buffer.New[Event](initialCapacity)}
}

// Publish enqueues ev.
func (m *Memory) Publish(_ context.Context, ev Event) error {
	if !m.events.Send(ev) {
		return ErrClosed
	}
	return nil
}

// Receive blocks for the next event. ok is false once ctx is done or the bus is closed and drained.
func (m *Memory) Receive(ctx context.Context) (Event, bool) {
	return m.events.ReceiveContext(ctx)
}

// Drain returns every queued event without blocking.
func (m *Memory) Drain() []Event {
	return m.events.DrainTo(0)
}

// Close stops accepting events.
func (m *Memory) Close() error {
	m.events.Close()
	return nil
}
