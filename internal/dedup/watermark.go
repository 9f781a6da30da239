package dedup

import (
	"container/list"
	"sync"
	"time"
)

// Watermarks remembers the newest timestamp seen per key, for a bounded number
// of recently used keys.
type Watermarks struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

type watermark struct {
	key string
	at  time.Time
}

// NewWatermarks creates a Watermarks holding at most capacity keys.
func NewWatermarks(capacity int) *Watermarks {
	if capacity < 1 {
		capacity = 1
	}
	return &Watermarks{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Advance records at for key unless a newer timestamp is already held, and
// reports whether at was accepted. Equal timestamps are accepted.
func (w *Watermarks) Advance(key string, at time.Time) bool {
	if key == "" {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.index[key]; ok {
		wm := el.Value.(*watermark)
		w.order.MoveToFront(el)
		if at.Before(wm.at) {
			return false
		}
		wm.at = at
		return true
	}

	w.index[key] = w.order.PushFront(&watermark{key: key, at: at})
	if w.order.Len() > w.capacity {
		oldest := w.order.Back()
		w.order.Remove(oldest)
		delete(w.index, oldest.Value.(*watermark).key)
	}
	return true
}

// Len returns the number of keys held.
func (w *Watermarks) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}
