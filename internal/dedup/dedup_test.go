package dedup

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestSeen(t *testing.T) {
	s := New(10)
	if s.Seen("a") {
		t.Error("Seen(a) first time = true, want false")
	}
	if !s.Seen("a") {
		t.Error("Seen(a) second time = false, want true")
	}
	if s.Seen("") || s.Seen("") {
		t.Error("empty keys must never be duplicates")
	}

	st := s.Stats()
	if st.Size != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats() = %+v, want size 1, hits 1, misses 1", st)
	}
}

func TestEvictsLeastRecentlySeen(t *testing.T) {
	s := New(2)
	s.Seen("a")
	s.Seen("b")
	s.Seen("a") // refresh a; b is now oldest
	s.Seen("c") // evicts b

	if !s.Seen("a") {
		t.Error("a should still be remembered")
	}
	if s.Seen("b") {
		t.Error("b should have been evicted")
	}
	if got := s.Stats().Size; got != 2 {
		t.Errorf("Size = %d, want 2", got)
	}
}

func TestForget(t *testing.T) {
	s := New(4)
	s.Seen("a")
	s.Forget("a")
	s.Forget("missing")
	if s.Seen("a") {
		t.Error("Seen(a) after Forget = true, want false")
	}
}

func TestMinimumCapacity(t *testing.T) {
	s := New(0)
	s.Seen("a")
	s.Seen("b")
	if got := s.Stats().Size; got != 1 {
		t.Errorf("Size = %d, want 1", got)
	}
}

func TestConcurrentSeen(t *testing.T) {
	s := New(1000)
	var wg sync.WaitGroup
	dups := make([]int, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if s.Seen(strconv.Itoa(i)) {
					dups[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, d := range dups {
		total += d
	}
	// Each of the 100 keys is new exactly once across all workers.
	if total != 700 {
		t.Errorf("duplicates = %d, want 700", total)
	}
}

func TestWatermarksRejectOlder(t *testing.T) {
	w := NewWatermarks(10)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	if !w.Advance("o1", t1) {
		t.Error("first timestamp rejected")
	}
	if !w.Advance("o1", t2) {
		t.Error("newer timestamp rejected")
	}
	if w.Advance("o1", t1) {
		t.Error("older timestamp accepted")
	}
	if !w.Advance("o1", t2) {
		t.Error("equal timestamp rejected")
	}
	if !w.Advance("", t1) {
		t.Error("empty key rejected")
	}
	if got := w.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestWatermarksEvictLeastRecentlyUsed(t *testing.T) {
	w := NewWatermarks(2)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	w.Advance("a", t1.Add(time.Hour))
	w.Advance("b", t1)
	w.Advance("c", t1) // evicts a

	if !w.Advance("a", t1) {
		t.Error("evicted key should accept any timestamp")
	}
	if got := w.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}
