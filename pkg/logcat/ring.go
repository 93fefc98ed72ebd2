package logcat

import (
	"sync"

	"github.com/modoterra/logcatview/pkg/core"
)

// Ring is a fixed-capacity FIFO of entries. When full, pushing evicts the
// oldest entry. It is safe for concurrent use.
type Ring struct {
	mu   sync.Mutex
	buf  []core.Entry
	head int
	size int
}

// NewRing creates a ring holding at most capacity entries (minimum 1).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]core.Entry, capacity)}
}

// Push appends e and reports whether an older entry was evicted.
func (r *Ring) Push(e core.Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.size) % len(r.buf)
	r.buf[idx] = e
	if r.size < len(r.buf) {
		r.size++
		return false
	}
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// Entries returns a copy of all entries, oldest first.
func (r *Ring) Entries() []core.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLocked(r.size)
}

// Last returns up to n of the newest entries, oldest first.
func (r *Ring) Last(n int) []core.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	return r.lastLocked(n)
}

// Drain returns all entries, oldest first, and empties the ring.
func (r *Ring) Drain() []core.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.lastLocked(r.size)
	r.resetLocked()
	return out
}

// Reset empties the ring.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
}

// Len returns the number of entries held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

func (r *Ring) lastLocked(n int) []core.Entry {
	out := make([]core.Entry, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}

func (r *Ring) resetLocked() {
	clear(r.buf)
	r.head = 0
	r.size = 0
}
