package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modoterra/logcatview/internal/logging"
	"github.com/modoterra/logcatview/pkg/config"
	"github.com/modoterra/logcatview/pkg/daemon"
	"github.com/modoterra/logcatview/pkg/logcat"
	"github.com/modoterra/logcatview/pkg/transport/uds"
)

const streamScript = `i=0
while true; do
  i=$((i+1))
  echo "01-02 03:04:05.678  100  200 W Fake: warn $i"
  echo "01-02 03:04:05.679  100  200 I Fake: info $i"
  sleep 0.02
done`

// run executes the root command with fresh flag state and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	socketPath, configPath = "", ""
	statusJSON, recordsJSON = false, false
	tailPriority, tailGrep, tailBuffer, tailLines, tailLocal = "", "", "", 100, false
	recordPriority, recordGrep, recordsTailLines = "", "", 50
	configInitOutput, configInitForce = "", false

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logcatview.yaml")
	if err := config.Save(cfg, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, script string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Command = []string{"sh", "-c", script, "logcat"}
	cfg.Socket = filepath.Join(dir, "d.sock")
	cfg.RecordsDir = filepath.Join(dir, "records")
	cfg.History = 500
	return cfg
}

func startDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.New(os.Stderr, false, slog.LevelError))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
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
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "logcatview ") {
		t.Fatalf("output = %q", out)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "logcatview.yaml")
	content := []byte(`version: 1
command: [adb, logcat]
buffer: radio
socket: /tmp/x.sock
records_dir: /tmp/records
`)
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "config", "validate", tmp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "valid") {
		t.Fatalf("output = %q", out)
	}
}

func TestConfigValidateInvalid(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "bad.yaml")
	content := []byte(`version: 2
buffer: nope
history: 0
`)
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, "config", "validate", tmp)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "unknown logcat buffer") {
		t.Fatalf("err = %v", err)
	}
}

func TestConfigInitUnknownPreset(t *testing.T) {
	_, err := run(t, "config", "init", "toaster", "--output", filepath.Join(t.TempDir(), "x.yaml"))
	if err == nil || !strings.Contains(err.Error(), "unknown preset") {
		t.Fatalf("err = %v", err)
	}
}

func TestTailLocal(t *testing.T) {
	script := `printf '%s\n' \
  "01-02 03:04:05.678  100  200 W Fake: first warning" \
  "01-02 03:04:05.679  100  200 I Fake: chatter" \
  "01-02 03:04:05.680  100  200 E Fake: broken thing"`
	path := writeConfig(t, testConfig(t, script))

	out, err := run(t, "--config", path, "tail", "--local", "--priority", "W")
	if !errors.Is(err, logcat.ErrStreamClosed) {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
	want := "01-02 03:04:05.678  100  200 W Fake: first warning\n" +
		"01-02 03:04:05.680  100  200 E Fake: broken thing\n"
	if out != want {
		t.Fatalf("output = %q", out)
	}
}

func TestTailLocalLaunchFailure(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Command = []string{filepath.Join(t.TempDir(), "no-such-logcat")}
	path := writeConfig(t, cfg)

	_, err := run(t, "--config", path, "tail", "--local")
	if !errors.Is(err, logcat.ErrLaunch) {
		t.Fatalf("err = %v, want ErrLaunch", err)
	}
}

func TestPingWithoutDaemon(t *testing.T) {
	_, err := run(t, "--socket", filepath.Join(t.TempDir(), "none.sock"), "ping")
	if err == nil || !strings.Contains(err.Error(), "cannot connect") {
		t.Fatalf("err = %v", err)
	}
}

func TestDaemonCommands(t *testing.T) {
	cfg := testConfig(t, streamScript)
	path := writeConfig(t, cfg)
	d := startDaemon(t, cfg)
	waitFor(t, "lines", func() bool { return d.Session().Status().Lines > 0 })

	out, err := run(t, "--config", path, "ping")
	if err != nil || !strings.Contains(out, "pong") {
		t.Fatalf("ping: %q %v", out, err)
	}

	out, err = run(t, "--config", path, "status", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var st uds.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("status json: %v\n%s", err, out)
	}
	if !st.Session.Running || st.Session.Buffer != "main" {
		t.Fatalf("status = %+v", st.Session)
	}

	if out, err = run(t, "--config", path, "pause"); err != nil || !strings.Contains(out, "paused") {
		t.Fatalf("pause: %q %v", out, err)
	}
	out, err = run(t, "--config", path, "status")
	if err != nil || !strings.Contains(out, "session:   paused") {
		t.Fatalf("status: %q %v", out, err)
	}
	if out, err = run(t, "--config", path, "resume"); err != nil || !strings.Contains(out, "resumed") {
		t.Fatalf("resume: %q %v", out, err)
	}

	if out, err = run(t, "--config", path, "record", "start", "cli.log", "--priority", "W"); err != nil {
		t.Fatalf("record start: %q %v", out, err)
	}
	waitFor(t, "recorded entries", func() bool {
		out, err := run(t, "--config", path, "status", "--json")
		if err != nil {
			return false
		}
		var st uds.StatusResponse
		return json.Unmarshal([]byte(out), &st) == nil && st.Recording != nil && st.Recording.Entries > 2
	})
	out, err = run(t, "--config", path, "record", "stop")
	if err != nil || !strings.Contains(out, "cli.log") {
		t.Fatalf("record stop: %q %v", out, err)
	}

	out, err = run(t, "--config", path, "records", "list")
	if err != nil || !strings.Contains(out, "cli.log") {
		t.Fatalf("records list: %q %v", out, err)
	}

	out, err = run(t, "--config", path, "records", "tail", "cli.log", "-n", "2")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("tail lines = %q", lines)
	}
	for _, l := range lines {
		if !strings.Contains(l, " W Fake: warn") {
			t.Fatalf("recorded a line below the filter: %q", l)
		}
	}

	exportDir := t.TempDir()
	out, err = run(t, "--config", path, "records", "export", exportDir, "cli.log")
	if err != nil || !strings.Contains(out, ".tar.gz") {
		t.Fatalf("export: %q %v", out, err)
	}

	out, err = run(t, "--config", path, "records", "delete", "cli.log")
	if err != nil || !strings.Contains(out, "deleted cli.log") {
		t.Fatalf("delete: %q %v", out, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.RecordsDir, "cli.log")); !os.IsNotExist(err) {
		t.Fatalf("record still on disk: %v", err)
	}

	if out, err = run(t, "--config", path, "source", "system"); err != nil || !strings.Contains(out, "system") {
		t.Fatalf("source: %q %v", out, err)
	}
	if _, err = run(t, "--config", path, "source", "bogus"); err == nil {
		t.Fatal("expected error for unknown buffer")
	}
}
