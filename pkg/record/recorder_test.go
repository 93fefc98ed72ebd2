package record

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modoterra/logcatview/pkg/core"
)

func TestRecorderWritesMatchingEntries(t *testing.T) {
	dir := t.TempDir()
	rec, err := Create(dir, "test.log", core.NewFilter(core.PriorityWarn, ""), WithFlushInterval(0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	lines := []string{
		"01-02 03:04:05.678  100  200 I ActivityManager: started",
		"01-02 03:04:05.679  100  200 W ActivityManager: slow",
		"01-02 03:04:05.680  100  200 E AndroidRuntime: crash",
		"not a logcat line",
	}
	var recorded int
	for _, l := range lines {
		ok, err := rec.Write(core.ParseEntry(l))
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if ok {
			recorded++
		}
	}
	if recorded != 2 {
		t.Fatalf("recorded %d entries, want 2", recorded)
	}

	st, err := rec.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st.Entries != 2 {
		t.Errorf("Entries = %d, want 2", st.Entries)
	}

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatal(err)
	}
	want := lines[1] + "\n" + lines[2] + "\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestRecorderBuffersUntilFlush(t *testing.T) {
	dir := t.TempDir()
	rec, err := Create(dir, "buf.log", core.Filter{}, WithFlushInterval(0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer rec.Close()

	if _, err := rec.Write(core.ParseEntry("hello")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "buf.log"))
	if len(data) != 0 {
		t.Fatalf("expected nothing on disk before flush, got %q", data)
	}

	if err := rec.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "buf.log"))
	if string(data) != "hello\n" {
		t.Errorf("after flush = %q", data)
	}
}

func TestRecorderFlushTimer(t *testing.T) {
	dir := t.TempDir()
	rec, err := Create(dir, "timer.log", core.Filter{}, WithFlushInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer rec.Close()

	if _, err := rec.Write(core.ParseEntry("tick")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(filepath.Join(dir, "timer.log"))
		if string(data) == "tick\n" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("flush timer never wrote the line")
}

func TestRecorderWriteAfterClose(t *testing.T) {
	rec, err := Create(t.TempDir(), "closed.log", core.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := rec.Write(core.ParseEntry("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after Close = %v, want ErrClosed", err)
	}
}

func TestRecorderRotation(t *testing.T) {
	dir := t.TempDir()
	rec, err := Create(dir, "rot.log", core.Filter{}, WithFlushInterval(0), WithMaxSize(10))
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range []string{"aaaaaaa", "bbbbbbb", "ccccccc"} {
		if _, err := rec.Write(core.ParseEntry(l)); err != nil {
			t.Fatalf("Write(%s): %v", l, err)
		}
	}
	if _, err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"rot.log":   "ccccccc\n",
		"rot.log.1": "bbbbbbb\n",
		"rot.log.2": "aaaaaaa\n",
	}
	for name, want := range cases {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", name, data, want)
		}
	}
}

func TestCreateRejectsBadName(t *testing.T) {
	_, err := Create(t.TempDir(), "../escape.log", core.Filter{})
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
}

func TestDefaultName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	got := DefaultName(ts)
	if got != "logcat-20240309-070501.log" {
		t.Errorf("DefaultName = %q", got)
	}
	if !strings.HasSuffix(got, ".log") {
		t.Errorf("missing .log suffix")
	}
}
