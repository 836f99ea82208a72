package ws

import (
	"sync"
	"time"
)

// fixedWindow is a fixed-window rate counter: up to limit events per
// window, resetting when the window rolls over.
type fixedWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	count  int
	start  time.Time
	now    func() time.Time
}

func newFixedWindow(limit int, window time.Duration) *fixedWindow {
	return &fixedWindow{limit: limit, window: window, now: time.Now}
}

// Allow consumes one slot, reporting false when the window is full.
// limit <= 0 disables the limiter.
func (w *fixedWindow) Allow() bool {
	if w.limit <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.now()
	if n.Sub(w.start) >= w.window {
		w.start = n
		w.count = 0
	}
	if w.count >= w.limit {
		return false
	}
	w.count++
	return true
}
