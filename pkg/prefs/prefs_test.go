package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/modoterra/logcatview/pkg/core"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p != Default() {
		t.Fatalf("prefs = %+v, want defaults", p)
	}
}

func TestLoad_ReadsDefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "logcatview")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := "priority = \"W\"\nfilter = \" ActivityManager \"\nbuffer = \"radio\"\n"
	if err := os.WriteFile(filepath.Join(dir, "prefs.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Priority != "W" || p.Filter != "ActivityManager" || p.Buffer != "radio" {
		t.Fatalf("prefs = %+v", p)
	}
	f := p.CoreFilter()
	if f.Priority != core.PriorityWarn || f.Text != "ActivityManager" {
		t.Errorf("CoreFilter = %+v", f)
	}
	if p.CoreBuffer() != core.BufferRadio {
		t.Errorf("CoreBuffer = %q", p.CoreBuffer())
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := os.WriteFile(path, []byte("priority = \"Z\"\nbuffer = \"nope\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Priority != "" || p.Buffer != "main" {
		t.Errorf("prefs = %+v", p)
	}
}

func TestLoad_InvalidTOMLFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := os.WriteFile(path, []byte("not valid toml {{{\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p != Default() {
		t.Fatalf("prefs = %+v", p)
	}
}

func TestSave_CreatesFileAndDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "prefs.toml")

	want := FromFilter(core.NewFilter(core.PriorityError, "gc"), core.BufferCrash)
	if err := Save(path, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got != want {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}
}
