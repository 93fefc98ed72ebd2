package record

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modoterra/logcatview/pkg/core"
)

const (
	// DefaultFlushInterval is how often buffered lines reach disk.
	DefaultFlushInterval = 5 * time.Second
	defaultBufSize       = 64 * 1024
	maxRotations         = 9
)

var (
	// ErrClosed is returned when writing to a recorder after Close.
	ErrClosed = errors.New("recorder closed")
	// ErrNotRecording is returned when stopping a recording that is not running.
	ErrNotRecording = errors.New("not recording")
	// ErrRecording is returned when starting a recording while one is active.
	ErrRecording = errors.New("already recording")
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithFlushInterval sets how often pending lines are flushed. Zero or
// negative disables the timer; lines then reach disk on Flush or Close.
func WithFlushInterval(d time.Duration) Option {
	return func(r *Recorder) { r.flushEvery = d }
}

// WithMaxSize sets the file size (bytes) at which the recording rotates to
// name.1, name.2, ... Zero disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(r *Recorder) { r.maxSize = bytes }
}

// Status describes an active recording.
type Status struct {
	Name      string      `json:"name"`
	Path      string      `json:"path"`
	Filter    core.Filter `json:"filter"`
	Entries   uint64      `json:"entries"`
	StartedAt time.Time   `json:"started_at"`
}

// Recorder appends filtered log entries to a file. Lines are buffered in
// memory and flushed on a timer.
type Recorder struct {
	mu         sync.Mutex
	name       string
	path       string
	f          *os.File
	w          *bufio.Writer
	filter     core.Filter
	entries    uint64
	written    int64
	maxSize    int64
	flushEvery time.Duration
	startedAt  time.Time
	flushErr   error
	closed     bool
	stop       chan struct{}
	done       chan struct{}
}

// Create opens (or appends to) dir/name and starts the flush timer.
func Create(dir, name string, filter core.Filter, opts ...Option) (*Recorder, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}

	r := &Recorder{
		name:       name,
		path:       filepath.Join(dir, name),
		filter:     filter,
		flushEvery: DefaultFlushInterval,
		startedAt:  time.Now(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}

	go r.flushLoop()
	return r, nil
}

// Write records e when it passes the recording filter and reports whether it did.
func (r *Recorder) Write(e core.Entry) (bool, error) {
	if !r.filter.Match(e) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}

	line := e.Raw + "\n"
	if r.maxSize > 0 && r.written > 0 && r.written+int64(len(line)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return false, fmt.Errorf("recorder: rotate: %w", err)
		}
	}

	n, err := r.w.WriteString(line)
	r.written += int64(n)
	if err != nil {
		return false, fmt.Errorf("recorder: write: %w", err)
	}
	r.entries++
	return true, nil
}

// Flush writes buffered lines to the file.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("recorder: flush: %w", err)
	}
	return nil
}

// Status returns the current recording state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Name:      r.name,
		Path:      r.path,
		Filter:    r.filter,
		Entries:   r.entries,
		StartedAt: r.startedAt,
	}
}

// Close stops the timer, flushes and closes the file. It is safe to call twice.
func (r *Recorder) Close() (Status, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return r.Status(), nil
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()

	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{Name: r.name, Path: r.path, Filter: r.filter, Entries: r.entries, StartedAt: r.startedAt}
	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	if err := errors.Join(r.flushErr, flushErr, closeErr); err != nil {
		return st, fmt.Errorf("recorder: close %s: %w", r.name, err)
	}
	return st, nil
}

func (r *Recorder) flushLoop() {
	defer close(r.done)
	if r.flushEvery <= 0 {
		<-r.stop
		return
	}

	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if err := r.w.Flush(); err != nil && r.flushErr == nil {
				r.flushErr = err
			}
			r.mu.Unlock()
		}
	}
}

func (r *Recorder) openFile() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("recorder: open %s: %w", r.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("recorder: stat %s: %w", r.path, err)
	}
	r.f = f
	r.w = bufio.NewWriterSize(f, defaultBufSize)
	r.written = info.Size()
	return nil
}

// rotate shifts name.N to name.N+1, moves the current file to name.1 and
// opens a fresh one.
func (r *Recorder) rotate() error {
	if err := r.w.Flush(); err != nil {
		return err
	}
	if err := r.f.Close(); err != nil {
		return err
	}
	for i := maxRotations - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", r.path, i)
		to := fmt.Sprintf("%s.%d", r.path, i+1)
		_ = os.Rename(from, to)
	}
	if err := os.Rename(r.path, r.path+".1"); err != nil {
		return err
	}
	return r.openFile()
}
