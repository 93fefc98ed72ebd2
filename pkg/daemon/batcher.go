package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/modoterra/logcatview/pkg/core"
)

// batcher groups entries into logs.batch events: it flushes every interval,
// or as soon as max entries are pending.
type batcher struct {
	interval time.Duration
	max      int
	publish  func([]core.Entry)

	mu      sync.Mutex
	pending []core.Entry

	// flushMu keeps published batches in order when Run and Flush race.
	flushMu sync.Mutex
	kick    chan struct{}
}

func newBatcher(interval time.Duration, max int, publish func([]core.Entry)) *batcher {
	return &batcher{
		interval: interval,
		max:      max,
		publish:  publish,
		kick:     make(chan struct{}, 1),
	}
}

// Add queues e. It never blocks on publishing.
func (b *batcher) Add(e core.Entry) {
	b.mu.Lock()
	b.pending = append(b.pending, e)
	full := len(b.pending) >= b.max
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Flush publishes everything pending.
func (b *batcher) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) > 0 {
		b.publish(batch)
	}
}

// Reset drops pending entries without publishing them.
func (b *batcher) Reset() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Run flushes on the interval until ctx is done, then flushes once more.
func (b *batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		case <-b.kick:
			b.Flush()
		}
	}
}
