package dedup

import (
	"context"
	"sync"
	"time"
)

// maxEntries bounds the in-memory window; past it the map is cleared
// wholesale rather than pruned entry by entry.
const maxEntries = 200_000

// Window is an in-memory Deduper. Entries expire after the window ttl;
// a replay within the window does not extend it.
type Window struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]time.Time // key -> expiry
	lastSweep time.Time
}

// NewWindow creates an in-memory dedup window.
func NewWindow(ttl time.Duration) *Window {
	return &Window{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

func (w *Window) Seen(_ context.Context, key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if exp, ok := w.entries[key]; ok && now.Before(exp) {
		return true
	}

	if now.Sub(w.lastSweep) >= w.ttl {
		w.sweep(now)
	}
	if len(w.entries) >= maxEntries {
		w.entries = make(map[string]time.Time)
	}
	w.entries[key] = now.Add(w.ttl)
	return false
}

func (w *Window) sweep(now time.Time) {
	for k, exp := range w.entries {
		if !now.Before(exp) {
			delete(w.entries, k)
		}
	}
	w.lastSweep = now
}

// Len reports the number of live entries. Intended for tests and
// health logging.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
