package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUnitContents(t *testing.T) {
	got := UnitContents("/usr/local/bin/logcatviewd", "")

	if !strings.Contains(got, "ExecStart=/usr/local/bin/logcatviewd\n") {
		t.Error("unit file missing ExecStart with binary path")
	}
	if !strings.Contains(got, "Type=notify") {
		t.Error("unit file missing Type=notify")
	}
	if !strings.Contains(got, "Restart=on-failure") {
		t.Error("unit file missing Restart=on-failure")
	}
	if !strings.Contains(got, "[Install]") {
		t.Error("unit file missing [Install] section")
	}
}

func TestUnitContentsWithConfig(t *testing.T) {
	got := UnitContents("/usr/bin/logcatviewd", "/home/u/.config/logcatview/logcatview.yaml")
	want := "ExecStart=/usr/bin/logcatviewd --config /home/u/.config/logcatview/logcatview.yaml"
	if !strings.Contains(got, want) {
		t.Errorf("unit file missing %q:\n%s", want, got)
	}
}

func TestUnitPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path, err := UnitPath()
	if err != nil {
		t.Fatalf("UnitPath() error: %v", err)
	}
	if !strings.HasSuffix(path, "systemd/user/logcatviewd.service") {
		t.Errorf("UnitPath() = %q, want suffix systemd/user/logcatviewd.service", path)
	}
}

func TestStatusNoSocket(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	got := Status(context.Background(), filepath.Join(t.TempDir(), "missing.sock"))
	if !strings.Contains(got, "socket: inactive") {
		t.Errorf("Status() should report inactive socket, got: %s", got)
	}
	if !strings.Contains(got, "not installed") {
		t.Errorf("Status() should report the unit as not installed, got: %s", got)
	}
}

func TestStatusWithSocket(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	// A regular file stands in for the socket.
	sock := filepath.Join(t.TempDir(), "logcatview.sock")
	if err := os.WriteFile(sock, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	got := Status(context.Background(), sock)
	if !strings.Contains(got, "socket: active") {
		t.Errorf("Status() should report active socket, got: %s", got)
	}
}

func TestDescribeState(t *testing.T) {
	tests := []struct {
		active, sub, want string
	}{
		{"active", "running", "running"},
		{"activating", "start", "activating (start)"},
		{"inactive", "dead", "stopped"},
		{"deactivating", "stop", "stopped"},
		{"failed", "failed", "failed"},
		{"maintenance", "", "unknown"},
	}
	for _, tt := range tests {
		if got := describeState(tt.active, tt.sub); got != tt.want {
			t.Errorf("describeState(%q, %q) = %q, want %q", tt.active, tt.sub, got, tt.want)
		}
	}
}
