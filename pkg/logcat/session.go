package logcat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modoterra/logcatview/pkg/core"
)

var (
	// ErrLaunch wraps failures to spawn the logcat process.
	ErrLaunch = errors.New("logcat launch failed")
	// ErrStreamClosed is reported when logcat's stdout reaches EOF without Stop being called.
	ErrStreamClosed = errors.New("logcat stream closed")
	// ErrRunning is returned by Start when the session is already reading.
	ErrRunning = errors.New("logcat session already running")
)

const defaultBacklog = 2000

// Listener receives entries in stream order. It is called from the reader
// goroutine and must not call Resume.
type Listener func(core.Entry)

// Options configure a Session.
type Options struct {
	Command Command
	Buffer  core.Buffer
	Format  string // passed as "-v <format>" when set
	Backlog int    // entries held while paused; zero uses 2000
	Logger  *slog.Logger

	// OnEnd is called once per run when the reader exits. err is nil after
	// Stop, and wraps ErrStreamClosed when logcat went away on its own.
	OnEnd func(err error)
}

// Status is a point-in-time view of a session.
type Status struct {
	ID        string      `json:"id,omitempty"`
	Buffer    core.Buffer `json:"buffer"`
	Command   []string    `json:"command,omitempty"`
	Running   bool        `json:"running"`
	Paused    bool        `json:"paused"`
	StartedAt time.Time   `json:"started_at,omitempty"`
	Lines     uint64      `json:"lines"`
	Backlog   int         `json:"backlog"`
	Dropped   uint64      `json:"dropped"`
	LastError string      `json:"last_error,omitempty"`
}

// Session owns one logcat process and the goroutine reading it.
type Session struct {
	opts     Options
	listener Listener
	logger   *slog.Logger
	backlog  *Ring

	// deliverMu is always taken before mu. It keeps listener calls ordered
	// while Resume flushes the backlog.
	deliverMu sync.Mutex
	mu        sync.Mutex
	id        string
	buffer    core.Buffer
	args      []string
	running   bool
	paused    bool
	startedAt time.Time
	seq       uint64
	lines     uint64
	dropped   uint64
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession creates a stopped session. Call Start to spawn logcat.
func NewSession(opts Options, listener Listener) *Session {
	if len(opts.Command) == 0 {
		opts.Command = DefaultCommand
	}
	if opts.Buffer == "" {
		opts.Buffer = core.BufferMain
	}
	if opts.Backlog <= 0 {
		opts.Backlog = defaultBacklog
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		opts:     opts,
		listener: listener,
		logger:   logger,
		backlog:  NewRing(opts.Backlog),
		buffer:   opts.Buffer,
	}
}

// Start spawns logcat for the current buffer and begins reading its stdout.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunning
	}

	args := s.opts.Command.Args(s.buffer, s.opts.Format)
	runCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		s.lastErr = fmt.Errorf("%w: stdout pipe: %w", ErrLaunch, err)
		return s.lastErr
	}
	if err := cmd.Start(); err != nil {
		cancel()
		s.lastErr = fmt.Errorf("%w: start %q: %w", ErrLaunch, args[0], err)
		return s.lastErr
	}

	s.id = uuid.NewString()
	s.args = args
	s.running = true
	s.startedAt = time.Now()
	s.seq = 0
	s.lines = 0
	s.dropped = 0
	s.lastErr = nil
	s.backlog.Reset()
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("logcat started", "session", s.id, "buffer", s.buffer, "pid", cmd.Process.Pid, "args", args)
	go s.read(runCtx, cmd, stdout, s.id, s.done)
	return nil
}

// Stop kills logcat and waits for the reader goroutine to exit.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	running := s.running
	s.mu.Unlock()

	if !running || cancel == nil {
		return
	}
	cancel()
	<-done
}

// Restart stops the current process, switches to buffer (when non-empty) and
// starts again. Pause state carries over.
func (s *Session) Restart(ctx context.Context, buffer core.Buffer) error {
	s.Stop()
	if buffer != "" {
		s.mu.Lock()
		s.buffer = buffer
		s.mu.Unlock()
	}
	return s.Start(ctx)
}

// Pause diverts new entries into the backlog instead of the listener.
// logcat keeps being read so the pipe never stalls.
func (s *Session) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume delivers the backlog in order and returns to direct delivery.
// It returns the number of entries flushed.
func (s *Session) Resume() int {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return 0
	}
	s.paused = false
	pending := s.backlog.Drain()
	s.mu.Unlock()

	if s.listener != nil {
		for _, e := range pending {
			s.listener(e)
		}
	}
	return len(pending)
}

// Paused reports whether delivery is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Buffer returns the buffer the session reads (or will read on Start).
func (s *Session) Buffer() core.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// Status returns a snapshot of the session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:        s.id,
		Buffer:    s.buffer,
		Command:   append([]string(nil), s.args...),
		Running:   s.running,
		Paused:    s.paused,
		StartedAt: s.startedAt,
		Lines:     s.lines,
		Backlog:   s.backlog.Len(),
		Dropped:   s.dropped,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Session) read(ctx context.Context, cmd *exec.Cmd, stdout io.ReadCloser, id string, done chan struct{}) {
	defer close(done)

	// Unblock the scanner on Stop even if a grandchild still holds the pipe.
	go func() {
		<-ctx.Done()
		stdout.Close()
	}()

	scanErr := scanLines(stdout, func(line string) { s.handleLine(id, line) })
	stopped := ctx.Err() != nil
	if scanErr != nil && !stopped {
		s.logger.Warn("logcat read error", "session", id, "err", scanErr)
		// logcat may still be writing and nobody drains the pipe any more.
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	var endErr error
	if !stopped {
		endErr = ErrStreamClosed
		switch {
		case scanErr != nil:
			endErr = fmt.Errorf("%w: %w", ErrStreamClosed, scanErr)
		case waitErr != nil:
			endErr = fmt.Errorf("%w: %w", ErrStreamClosed, waitErr)
		}
		s.logger.Error("logcat ended", "session", id, "err", endErr)
	} else {
		s.logger.Info("logcat stopped", "session", id)
	}

	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.lastErr = endErr
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if s.opts.OnEnd != nil {
		s.opts.OnEnd(endErr)
	}
}

func (s *Session) handleLine(id, line string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if id != s.id {
		s.mu.Unlock()
		return
	}
	s.seq++
	s.lines++
	e := core.ParseEntry(line)
	e.Seq = s.seq
	e.SessionID = id

	if s.paused {
		if s.backlog.Push(e) {
			s.dropped++
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener(e)
	}
}
