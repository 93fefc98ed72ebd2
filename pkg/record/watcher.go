package record

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reports changes to the records directory.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher starts watching dir. Call Run to receive notifications.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("records watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("records watcher: watch %s: %w", dir, err)
	}
	return &Watcher{fs: fw, debounce: defaultDebounce, logger: logger}, nil
}

// Run calls onChange, at most once per debounce window, whenever a file is
// created, removed or renamed. Writes are ignored: an active recording
// would otherwise fire every flush. Run returns when ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	defer w.fs.Close()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			onChange()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("records watcher error", "err", err)
		}
	}
}
