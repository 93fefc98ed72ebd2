package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"

	"github.com/modoterra/logcatview/internal/buildinfo"
	"github.com/modoterra/logcatview/pkg/config"
	"github.com/modoterra/logcatview/pkg/core"
	"github.com/modoterra/logcatview/pkg/logcat"
	"github.com/modoterra/logcatview/pkg/record"
	"github.com/modoterra/logcatview/pkg/transport/uds"
)

const (
	batchInterval   = 100 * time.Millisecond
	batchMax        = 256
	statusInterval  = time.Second
	defaultTailSize = 50
)

// Daemon is the logcatviewd process: it owns the logcat session, its
// history and the active recording, and serves them over the socket.
type Daemon struct {
	cfg     *config.Config
	server  *uds.Server
	session *logcat.Session
	history *logcat.Ring
	store   *record.Store
	batcher *batcher
	status  *StatusLoop
	logger  *slog.Logger

	mu       sync.Mutex
	recorder *record.Recorder
	runCtx   context.Context
}

// New creates a daemon for cfg. The records directory is created if needed.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	buffer, err := core.ParseBuffer(cfg.Buffer)
	if err != nil {
		return nil, err
	}
	store, err := record.NewStore(cfg.RecordsDir)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:     cfg,
		server:  uds.NewServer(cfg.Socket, logger),
		history: logcat.NewRing(cfg.History),
		store:   store,
		logger:  logger,
		runCtx:  context.Background(),
	}
	d.batcher = newBatcher(batchInterval, batchMax, d.publishBatch)
	d.status = NewStatusLoop(d, statusInterval, logger)
	d.session = logcat.NewSession(logcat.Options{
		Command: cfg.LogcatCommand(),
		Buffer:  buffer,
		Format:  cfg.Format,
		Backlog: cfg.Backlog,
		Logger:  logger,
		OnEnd:   d.onSessionEnd,
	}, d.onEntry)
	d.registerHandlers()
	return d, nil
}

// Server returns the underlying UDS server (for broadcasting events).
func (d *Daemon) Server() *uds.Server {
	return d.server
}

// Session returns the logcat session.
func (d *Daemon) Session() *logcat.Session {
	return d.session
}

// Run starts logcat (when autostart is set), the background loops and the
// socket server. It blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.runCtx = ctx
	d.mu.Unlock()

	go d.batcher.Run(ctx)
	go d.status.Run(ctx)

	if w, err := record.NewWatcher(d.store.Dir(), d.logger); err != nil {
		d.logger.Warn("records watcher disabled", "err", err)
	} else {
		go w.Run(ctx, d.publishRecordsChanged)
	}

	if d.cfg.MetricsAddr != "" {
		go d.serveMetrics(ctx)
	}

	if d.cfg.Autostart {
		if err := d.startSession(ctx); err != nil {
			// The daemon stays up so clients can see the error and pick another source.
			d.logger.Error("initial logcat start failed", "err", err)
		}
	}

	go func() {
		select {
		case <-d.server.Ready():
			notify(d.logger, sddaemon.SdNotifyReady)
		case <-ctx.Done():
		}
	}()

	err := d.server.Start(ctx)
	notify(d.logger, sddaemon.SdNotifyStopping)
	return err
}

// Shutdown stops logcat, closes the recording and cleans up the socket.
func (d *Daemon) Shutdown() {
	d.session.Stop()
	d.batcher.Flush()
	if _, err := d.stopRecording(); err != nil && !errors.Is(err, record.ErrNotRecording) {
		d.logger.Error("close recording", "err", err)
	}
	d.server.Shutdown()
}

func notify(logger *slog.Logger, state string) {
	sent, err := sddaemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("sd_notify failed", "state", state, "err", err)
		return
	}
	if sent {
		logger.Debug("sd_notify", "state", state)
	}
}

func (d *Daemon) serveMetrics(ctx context.Context) {
	srv := &http.Server{
		Addr:              d.cfg.MetricsAddr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	d.logger.Info("metrics listening", "addr", d.cfg.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.logger.Error("metrics server error", "err", err)
	}
}

// onEntry is the session listener. It runs on the reader goroutine (or on
// a Resume handler) and must not call back into the session.
func (d *Daemon) onEntry(e core.Entry) {
	d.history.Push(e)
	linesRead.WithLabelValues(e.Priority.String()).Inc()

	d.mu.Lock()
	rec := d.recorder
	d.mu.Unlock()
	if rec != nil {
		ok, err := rec.Write(e)
		switch {
		case err != nil && !errors.Is(err, record.ErrClosed):
			d.logger.Error("record write failed", "err", err)
		case ok:
			linesRecorded.Inc()
		}
	}

	d.batcher.Add(e)
}

func (d *Daemon) onSessionEnd(err error) {
	if err == nil {
		return
	}
	d.logger.Error("logcat session ended", "err", err)
	sessionFailures.WithLabelValues(failureReason(err)).Inc()

	if st, stopErr := d.stopRecording(); stopErr == nil {
		d.logger.Info("recording closed", "name", st.Name, "entries", st.Entries)
	} else if !errors.Is(stopErr, record.ErrNotRecording) {
		d.logger.Error("close recording", "err", stopErr)
	}

	d.batcher.Flush()
	d.broadcast(uds.EventSessionEnded, uds.SessionEndedEvent{Error: err.Error()})
	d.status.Check()
}

func (d *Daemon) startSession(ctx context.Context) error {
	err := d.session.Start(ctx)
	return d.afterStart(err)
}

func (d *Daemon) restartSession(buffer core.Buffer) error {
	d.mu.Lock()
	ctx := d.runCtx
	d.mu.Unlock()
	err := d.session.Restart(ctx, buffer)
	return d.afterStart(err)
}

func (d *Daemon) afterStart(err error) error {
	if err != nil {
		if errors.Is(err, logcat.ErrLaunch) {
			sessionFailures.WithLabelValues(failureReason(err)).Inc()
			d.broadcast(uds.EventSessionEnded, uds.SessionEndedEvent{Error: err.Error()})
		}
		d.status.Check()
		return err
	}
	sessionsStarted.WithLabelValues(string(d.session.Buffer())).Inc()
	d.status.Check()
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, logcat.ErrLaunch):
		return "launch"
	case errors.Is(err, logcat.ErrStreamClosed):
		return "stream_closed"
	default:
		return "other"
	}
}

func (d *Daemon) publishBatch(entries []core.Entry) {
	if d.server.Subscribers(uds.TopicLogs) == 0 {
		return
	}
	evt, err := uds.NewEvent(uds.EventLogsBatch, entries)
	if err != nil {
		d.logger.Error("encode batch", "err", err)
		return
	}
	d.server.Publish(uds.TopicLogs, evt)
}

func (d *Daemon) publishRecordsChanged() {
	d.broadcast(uds.EventRecordsChanged, nil)
}

func (d *Daemon) broadcast(method string, data any) {
	evt, err := uds.NewEvent(method, data)
	if err != nil {
		d.logger.Error("encode event", "method", method, "err", err)
		return
	}
	d.server.Broadcast(evt)
}

func (d *Daemon) statusResponse() uds.StatusResponse {
	resp := uds.StatusResponse{
		Session:    d.session.Status(),
		History:    d.history.Len(),
		RecordsDir: d.store.Dir(),
	}
	d.mu.Lock()
	if d.recorder != nil {
		st := d.recorder.Status()
		resp.Recording = &st
	}
	d.mu.Unlock()
	return resp
}

func (d *Daemon) startRecording(name string, filter core.Filter) (record.Status, error) {
	if name == "" {
		name = record.DefaultName(time.Now())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recorder != nil {
		return record.Status{}, fmt.Errorf("%w: %s", record.ErrRecording, d.recorder.Status().Name)
	}
	rec, err := record.Create(d.store.Dir(), name, filter,
		record.WithFlushInterval(d.cfg.FlushInterval),
		record.WithMaxSize(d.cfg.MaxRecordBytes),
	)
	if err != nil {
		return record.Status{}, err
	}
	d.recorder = rec
	st := rec.Status()
	d.logger.Info("recording started", "name", st.Name, "filter", filter.String())
	return st, nil
}

func (d *Daemon) stopRecording() (record.Status, error) {
	d.mu.Lock()
	rec := d.recorder
	d.recorder = nil
	d.mu.Unlock()

	if rec == nil {
		return record.Status{}, record.ErrNotRecording
	}
	st, err := rec.Close()
	if err == nil {
		d.logger.Info("recording stopped", "name", st.Name, "entries", st.Entries)
	}
	return st, err
}

// flushActive makes sure an in-progress recording is on disk before it is
// read back.
func (d *Daemon) flushActive(names ...string) {
	d.mu.Lock()
	rec := d.recorder
	d.mu.Unlock()
	if rec == nil || !slices.Contains(names, rec.Status().Name) {
		return
	}
	if err := rec.Flush(); err != nil {
		d.logger.Warn("flush recording", "err", err)
	}
}

func (d *Daemon) activeRecording() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recorder == nil {
		return ""
	}
	return d.recorder.Status().Name
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
	d.server.Handle(uds.MethodRecent, d.handleRecent)
	d.server.Handle(uds.MethodLogsSubscribe, d.handleLogsSubscribe)
	d.server.Handle(uds.MethodLogsUnsubscribe, d.handleLogsUnsubscribe)
	d.server.Handle(uds.MethodPause, d.handlePause)
	d.server.Handle(uds.MethodResume, d.handleResume)
	d.server.Handle(uds.MethodClear, d.handleClear)
	d.server.Handle(uds.MethodSetSource, d.handleSetSource)
	d.server.Handle(uds.MethodRestart, d.handleRestart)
	d.server.Handle(uds.MethodStartRecording, d.handleStartRecording)
	d.server.Handle(uds.MethodStopRecording, d.handleStopRecording)
	d.server.Handle(uds.MethodListRecords, d.handleListRecords)
	d.server.Handle(uds.MethodDeleteRecords, d.handleDeleteRecords)
	d.server.Handle(uds.MethodExportRecords, d.handleExportRecords)
	d.server.Handle(uds.MethodTailRecord, d.handleTailRecord)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Version: buildinfo.Version}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ uds.Message) (any, error) {
	return d.statusResponse(), nil
}

func (d *Daemon) handleRecent(_ context.Context, msg uds.Message) (any, error) {
	var req uds.RecentRequest
	if err := msg.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return uds.EntriesResponse{Entries: d.history.Last(req.Limit)}, nil
}

// handleLogsSubscribe subscribes first and snapshots history second, so no
// entry falls between the two. Clients drop repeats by Seq.
func (d *Daemon) handleLogsSubscribe(ctx context.Context, msg uds.Message) (any, error) {
	var req uds.RecentRequest
	if err := msg.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if err := d.server.Subscribe(ctx, uds.TopicLogs); err != nil {
		return nil, err
	}
	return uds.EntriesResponse{Entries: d.history.Last(req.Limit)}, nil
}

func (d *Daemon) handleLogsUnsubscribe(ctx context.Context, _ uds.Message) (any, error) {
	return nil, d.server.Unsubscribe(ctx, uds.TopicLogs)
}

func (d *Daemon) handlePause(_ context.Context, _ uds.Message) (any, error) {
	d.session.Pause()
	d.logger.Info("session paused")
	d.status.Check()
	return d.session.Status(), nil
}

func (d *Daemon) handleResume(_ context.Context, _ uds.Message) (any, error) {
	n := d.session.Resume()
	d.logger.Info("session resumed", "flushed", n)
	d.status.Check()
	return uds.ResumeResponse{Flushed: n}, nil
}

func (d *Daemon) handleClear(_ context.Context, _ uds.Message) (any, error) {
	d.history.Reset()
	d.batcher.Reset()
	d.logger.Info("history cleared")
	return nil, nil
}

func (d *Daemon) handleSetSource(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SetSourceRequest
	if err := msg.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	buffer, err := core.ParseBuffer(req.Buffer)
	if err != nil {
		return nil, err
	}
	d.logger.Info("switching logcat source", "buffer", buffer)
	if err := d.restartSession(buffer); err != nil {
		return nil, err
	}
	return d.session.Status(), nil
}

func (d *Daemon) handleRestart(_ context.Context, _ uds.Message) (any, error) {
	if err := d.restartSession(""); err != nil {
		return nil, err
	}
	return d.session.Status(), nil
}

func (d *Daemon) handleStartRecording(_ context.Context, msg uds.Message) (any, error) {
	var req uds.StartRecordingRequest
	if err := msg.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	st, err := d.startRecording(req.Name, core.NewFilter(req.Filter.Priority, req.Filter.Text))
	if err != nil {
		return nil, err
	}
	d.status.Check()
	return st, nil
}

func (d *Daemon) handleStopRecording(_ context.Context, _ uds.Message) (any, error) {
	st, err := d.stopRecording()
	if err != nil {
		return nil, err
	}
	d.status.Check()
	return st, nil
}

func (d *Daemon) handleListRecords(_ context.Context, _ uds.Message) (any, error) {
	infos, err := d.store.List()
	if err != nil {
		return nil, err
	}
	return uds.ListRecordsResponse{Dir: d.store.Dir(), Records: infos}, nil
}

func (d *Daemon) handleDeleteRecords(_ context.Context, msg uds.Message) (any, error) {
	var req uds.DeleteRecordsRequest
	if err := msg.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	var errs []error
	names := make([]string, 0, len(req.Names))
	active := d.activeRecording()
	for _, name := range req.Names {
		if name != "" && name == active {
			errs = append(errs, fmt.Errorf("delete %s: recording in progress", name))
			continue
		}
		names = append(names, name)
	}

	deleted, err := d.store.Delete(names...)
	if err != nil {
		errs = append(errs, err)
	}
	if len(deleted) > 0 {
		d.logger.Info("records deleted", "names", deleted)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return uds.DeleteRecordsResponse{Deleted: deleted}, nil
}

func (d *Daemon) handleExportRecords(_ context.Context, msg uds.Message) (any, error) {
	var req uds.ExportRecordsRequest
	if err := msg.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if !filepath.IsAbs(req.Dest) {
		return nil, fmt.Errorf("export destination must be absolute, got %q", req.Dest)
	}

	dest := req.Dest
	if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
		dest = filepath.Join(dest, ExportName(time.Now()))
	}
	d.flushActive(req.Names...)
	if err := d.store.ExportFile(dest, req.Names...); err != nil {
		return nil, err
	}
	d.logger.Info("records exported", "dest", dest, "count", len(req.Names))
	return uds.ExportRecordsResponse{Path: dest}, nil
}

func (d *Daemon) handleTailRecord(_ context.Context, msg uds.Message) (any, error) {
	var req uds.TailRecordRequest
	if err := msg.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	n := req.Lines
	if n <= 0 {
		n = defaultTailSize
	}
	d.flushActive(req.Name)
	lines, err := d.store.Tail(req.Name, n)
	if err != nil {
		return nil, err
	}
	return uds.TailRecordResponse{Lines: lines}, nil
}

// ExportName is the archive file name used when exporting into a directory.
func ExportName(t time.Time) string {
	return t.Format("logcat-records-20060102-150405") + ".tar.gz"
}
