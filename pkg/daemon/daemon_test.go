package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/logcatview/pkg/config"
	"github.com/modoterra/logcatview/pkg/core"
	"github.com/modoterra/logcatview/pkg/logcat"
	"github.com/modoterra/logcatview/pkg/record"
	"github.com/modoterra/logcatview/pkg/transport/uds"
)

// streamScript prints a warning and an info line every 20ms until killed.
const streamScript = `i=0
while true; do
  i=$((i+1))
  echo "01-02 03:04:05.678  100  200 W Fake: warn $i"
  echo "01-02 03:04:05.679  100  200 I Fake: info $i"
  sleep 0.02
done`

func testConfig(t *testing.T, script string, autostart bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Command = []string{"sh", "-c", script, "logcat"}
	cfg.Socket = filepath.Join(dir, "d.sock")
	cfg.RecordsDir = filepath.Join(dir, "records")
	cfg.History = 500
	cfg.Autostart = autostart
	return cfg
}

func startDaemon(t *testing.T, cfg *config.Config) (*Daemon, *uds.Client) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	d, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		d.Shutdown()
		<-done
	})

	select {
	case <-d.Server().Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never listened")
	}

	client, err := uds.Dial(cfg.Socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return d, client
}

func call(t *testing.T, c *uds.Client, method string, req, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Call(ctx, method, req, out); err != nil {
		t.Fatalf("%s: %v", method, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type eventLog struct {
	mu     sync.Mutex
	events []uds.Message
}

func (l *eventLog) add(m uds.Message) {
	l.mu.Lock()
	l.events = append(l.events, m)
	l.mu.Unlock()
}

func (l *eventLog) find(method string) (uds.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.events {
		if m.Method == method {
			return m, true
		}
	}
	return uds.Message{}, false
}

func TestDaemonStreamsAndSubscribes(t *testing.T) {
	_, client := startDaemon(t, testConfig(t, streamScript, true))

	events := &eventLog{}
	client.OnEvent(events.add)

	var status uds.StatusResponse
	waitFor(t, "history", func() bool {
		call(t, client, uds.MethodStatus, nil, &status)
		return status.History >= 4
	})
	if !status.Session.Running || status.Session.Buffer != core.BufferMain {
		t.Fatalf("status = %+v", status.Session)
	}

	var recent uds.EntriesResponse
	call(t, client, uds.MethodRecent, uds.RecentRequest{Limit: 2}, &recent)
	if len(recent.Entries) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(recent.Entries))
	}
	if recent.Entries[0].Seq >= recent.Entries[1].Seq {
		t.Errorf("entries out of order: %d, %d", recent.Entries[0].Seq, recent.Entries[1].Seq)
	}

	var snap uds.EntriesResponse
	call(t, client, uds.MethodLogsSubscribe, uds.RecentRequest{Limit: 10}, &snap)
	if len(snap.Entries) == 0 {
		t.Fatal("subscribe returned no history")
	}

	waitFor(t, "logs.batch", func() bool {
		_, ok := events.find(uds.EventLogsBatch)
		return ok
	})
	msg, _ := events.find(uds.EventLogsBatch)
	var batch []core.Entry
	if err := msg.Decode(&batch); err != nil {
		t.Fatal(err)
	}
	if len(batch) == 0 || batch[0].Tag != "Fake" {
		t.Errorf("batch = %+v", batch)
	}
}

func TestDaemonPauseResume(t *testing.T) {
	d, client := startDaemon(t, testConfig(t, streamScript, true))

	waitFor(t, "running", func() bool { return d.Session().Status().Lines > 0 })

	var st logcat.Status
	call(t, client, uds.MethodPause, nil, &st)
	if !st.Paused {
		t.Fatal("expected paused status")
	}
	before := d.history.Len()
	waitFor(t, "backlog", func() bool { return d.Session().Status().Backlog > 2 })
	if d.history.Len() > before+2 {
		t.Errorf("history grew while paused: %d -> %d", before, d.history.Len())
	}

	var res uds.ResumeResponse
	call(t, client, uds.MethodResume, nil, &res)
	if res.Flushed < 3 {
		t.Errorf("flushed = %d", res.Flushed)
	}
	if d.Session().Paused() {
		t.Error("still paused after resume")
	}
}

func TestDaemonRecording(t *testing.T) {
	cfg := testConfig(t, streamScript, true)
	d, client := startDaemon(t, cfg)

	waitFor(t, "running", func() bool { return d.Session().Status().Lines > 0 })

	var started record.Status
	call(t, client, uds.MethodStartRecording, uds.StartRecordingRequest{
		Name:   "warn.log",
		Filter: core.NewFilter(core.PriorityWarn, ""),
	}, &started)
	if started.Name != "warn.log" {
		t.Fatalf("started = %+v", started)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Call(ctx, uds.MethodStartRecording, uds.StartRecordingRequest{Name: "again.log"}, nil); err == nil {
		t.Error("second StartRecording should fail")
	}

	waitFor(t, "recorded entries", func() bool {
		var status uds.StatusResponse
		call(t, client, uds.MethodStatus, nil, &status)
		return status.Recording != nil && status.Recording.Entries >= 3
	})

	var tail uds.TailRecordResponse
	call(t, client, uds.MethodTailRecord, uds.TailRecordRequest{Name: "warn.log", Lines: 2}, &tail)
	if len(tail.Lines) != 2 {
		t.Fatalf("tail = %v", tail.Lines)
	}

	var stopped record.Status
	call(t, client, uds.MethodStopRecording, nil, &stopped)
	if stopped.Entries < 3 {
		t.Errorf("stopped entries = %d", stopped.Entries)
	}

	data, err := os.ReadFile(filepath.Join(cfg.RecordsDir, "warn.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if !strings.Contains(line, " W Fake:") {
			t.Errorf("recorded line below threshold: %q", line)
		}
	}

	if err := client.Call(ctx, uds.MethodStopRecording, nil, nil); err == nil {
		t.Error("StopRecording with nothing active should fail")
	}

	var list uds.ListRecordsResponse
	call(t, client, uds.MethodListRecords, nil, &list)
	if len(list.Records) != 1 || list.Records[0].Name != "warn.log" {
		t.Fatalf("records = %+v", list.Records)
	}

	exportDir := t.TempDir()
	var exported uds.ExportRecordsResponse
	call(t, client, uds.MethodExportRecords, uds.ExportRecordsRequest{Names: []string{"warn.log"}, Dest: exportDir}, &exported)
	if filepath.Dir(exported.Path) != exportDir || !strings.HasSuffix(exported.Path, ".tar.gz") {
		t.Errorf("export path = %q", exported.Path)
	}
	if _, err := os.Stat(exported.Path); err != nil {
		t.Errorf("archive missing: %v", err)
	}

	var deleted uds.DeleteRecordsResponse
	call(t, client, uds.MethodDeleteRecords, uds.DeleteRecordsRequest{Names: []string{"warn.log"}}, &deleted)
	if len(deleted.Deleted) != 1 {
		t.Errorf("deleted = %v", deleted.Deleted)
	}
}

func TestDaemonRefusesDeletingActiveRecording(t *testing.T) {
	d, client := startDaemon(t, testConfig(t, streamScript, true))
	waitFor(t, "running", func() bool { return d.Session().Status().Lines > 0 })

	call(t, client, uds.MethodStartRecording, uds.StartRecordingRequest{Name: "live.log"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Call(ctx, uds.MethodDeleteRecords, uds.DeleteRecordsRequest{Names: []string{"live.log"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "recording in progress") {
		t.Fatalf("err = %v", err)
	}
}

func TestDaemonSetSource(t *testing.T) {
	d, client := startDaemon(t, testConfig(t, streamScript, true))
	waitFor(t, "running", func() bool { return d.Session().Status().Running })
	firstID := d.Session().Status().ID

	var st logcat.Status
	call(t, client, uds.MethodSetSource, uds.SetSourceRequest{Buffer: "radio"}, &st)
	if st.Buffer != core.BufferRadio || !st.Running {
		t.Fatalf("status = %+v", st)
	}
	if st.ID == firstID {
		t.Error("expected a new session id")
	}
	if got := strings.Join(st.Command, " "); !strings.Contains(got, "-b radio") {
		t.Errorf("command = %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Call(ctx, uds.MethodSetSource, uds.SetSourceRequest{Buffer: "bogus"}, nil); err == nil {
		t.Error("expected error for unknown buffer")
	}
}

func TestDaemonClear(t *testing.T) {
	d, client := startDaemon(t, testConfig(t, "echo one; echo two; exec sleep 30", true))
	waitFor(t, "history", func() bool { return d.history.Len() == 2 })

	call(t, client, uds.MethodClear, nil, nil)
	if n := d.history.Len(); n != 0 {
		t.Errorf("history after clear = %d", n)
	}
}

func TestDaemonSubscribeFullHistory(t *testing.T) {
	script := `i=0
while [ $i -lt 5000 ]; do
  i=$((i+1))
  echo "01-02 03:04:05.678  100  200 I Fake: line $i padding padding padding padding padding padding padding padding"
done
exec sleep 30`
	cfg := testConfig(t, script, true)
	cfg.History = 5000
	d, client := startDaemon(t, cfg)
	waitFor(t, "full history", func() bool { return d.history.Len() == 5000 })

	var resp uds.EntriesResponse
	call(t, client, uds.MethodLogsSubscribe, uds.RecentRequest{Limit: 5000}, &resp)
	if len(resp.Entries) != 5000 {
		t.Fatalf("entries = %d, want 5000", len(resp.Entries))
	}
	if !strings.HasSuffix(resp.Entries[4999].Message, "line 5000 padding padding padding padding padding padding padding padding") {
		t.Errorf("last entry = %q", resp.Entries[4999].Message)
	}

	// The connection survives the reply.
	call(t, client, uds.MethodPing, nil, nil)
}

func TestDaemonReportsSessionEnd(t *testing.T) {
	cfg := testConfig(t, "echo only-line", false)
	d, client := startDaemon(t, cfg)

	events := &eventLog{}
	client.OnEvent(events.add)

	call(t, client, uds.MethodPing, nil, nil)
	call(t, client, uds.MethodStartRecording, uds.StartRecordingRequest{Name: "short.log"}, nil)
	call(t, client, uds.MethodRestart, nil, nil)

	waitFor(t, "session.ended", func() bool {
		_, ok := events.find(uds.EventSessionEnded)
		return ok
	})
	msg, _ := events.find(uds.EventSessionEnded)
	var ended uds.SessionEndedEvent
	if err := msg.Decode(&ended); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ended.Error, logcat.ErrStreamClosed.Error()) {
		t.Errorf("ended error = %q", ended.Error)
	}

	st := d.Session().Status()
	if st.Running || st.LastError == "" {
		t.Errorf("status after end = %+v", st)
	}
	if d.activeRecording() != "" {
		t.Error("recording should stop when the session ends")
	}
	data, err := os.ReadFile(filepath.Join(cfg.RecordsDir, "short.log"))
	if err != nil || strings.TrimSpace(string(data)) != "only-line" {
		t.Errorf("recording = %q, %v", data, err)
	}
}

func TestDaemonLaunchFailure(t *testing.T) {
	cfg := testConfig(t, "", false)
	cfg.Command = []string{"/nonexistent/logcat-binary"}
	d, client := startDaemon(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Call(ctx, uds.MethodRestart, nil, nil)
	if err == nil || !strings.Contains(err.Error(), logcat.ErrLaunch.Error()) {
		t.Fatalf("err = %v", err)
	}
	if st := d.Session().Status(); st.Running || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}
}
