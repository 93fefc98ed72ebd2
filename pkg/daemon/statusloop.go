package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/modoterra/logcatview/pkg/transport/uds"
)

// StatusLoop samples the daemon status every interval and pushes a
// session.status event when something a client displays has changed.
type StatusLoop struct {
	daemon   *Daemon
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last *uds.StatusResponse
}

// NewStatusLoop creates a status loop for the given daemon.
func NewStatusLoop(d *Daemon, interval time.Duration, logger *slog.Logger) *StatusLoop {
	return &StatusLoop{daemon: d, interval: interval, logger: logger}
}

// Run starts the loop. Blocks until ctx is cancelled.
func (sl *StatusLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(sl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sl.Check()
		}
	}
}

// Check samples the status now and publishes it if it changed.
func (sl *StatusLoop) Check() {
	st := sl.daemon.statusResponse()
	historySize.Set(float64(st.History))

	sl.mu.Lock()
	prev := sl.last
	sl.last = &st
	sl.mu.Unlock()

	if prev != nil && prev.Session.ID == st.Session.ID && st.Session.Dropped > prev.Session.Dropped {
		backlogDropped.Add(float64(st.Session.Dropped - prev.Session.Dropped))
	}
	if prev != nil && !statusChanged(*prev, st) {
		return
	}

	evt, err := uds.NewEvent(uds.EventSessionStatus, st)
	if err != nil {
		sl.logger.Error("encode status", "err", err)
		return
	}
	sl.daemon.Server().Broadcast(evt)
}

// statusChanged ignores the line counters, which move on every tick while
// logcat is busy.
func statusChanged(a, b uds.StatusResponse) bool {
	as, bs := a.Session, b.Session
	if as.ID != bs.ID ||
		as.Buffer != bs.Buffer ||
		as.Running != bs.Running ||
		as.Paused != bs.Paused ||
		as.Backlog != bs.Backlog ||
		as.Dropped != bs.Dropped ||
		as.LastError != bs.LastError {
		return true
	}
	switch {
	case a.Recording == nil && b.Recording == nil:
		return false
	case a.Recording == nil || b.Recording == nil:
		return true
	default:
		return a.Recording.Name != b.Recording.Name
	}
}
