// Package prefs persists the viewer's filter state between runs.
// Preferences are stored in ~/.config/logcatview/prefs.toml.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/modoterra/logcatview/pkg/core"
)

// Prefs holds the last filter state chosen in the TUI.
type Prefs struct {
	Priority string `toml:"priority"`
	Filter   string `toml:"filter"`
	Buffer   string `toml:"buffer"`
}

const defaultPrefsPath = "~/.config/logcatview/prefs.toml"

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Default returns the preferences used on first run.
func Default() Prefs {
	return Prefs{Buffer: string(core.BufferMain)}
}

// FromFilter captures the TUI state.
func FromFilter(f core.Filter, buffer core.Buffer) Prefs {
	return Prefs{Priority: f.Priority.Letter(), Filter: f.Text, Buffer: string(buffer)}
}

// CoreFilter converts the saved state back to a filter. Invalid values
// were already dropped by Load.
func (p Prefs) CoreFilter() core.Filter {
	prio, _ := core.ParsePriority(p.Priority)
	return core.NewFilter(prio, p.Filter)
}

// CoreBuffer returns the saved buffer, or main.
func (p Prefs) CoreBuffer() core.Buffer {
	b, err := core.ParseBuffer(p.Buffer)
	if err != nil {
		return core.BufferMain
	}
	return b
}

// Load reads preferences from the given path, falling back to defaults on
// any error.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Default(), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return Default(), nil // Graceful degradation
	}

	prefs := Default()
	if err := toml.Unmarshal(data, &prefs); err != nil {
		return Default(), nil // Graceful degradation
	}

	if _, err := core.ParsePriority(prefs.Priority); err != nil {
		prefs.Priority = ""
	}
	if _, err := core.ParseBuffer(prefs.Buffer); err != nil || prefs.Buffer == "" {
		prefs.Buffer = string(core.BufferMain)
	}
	prefs.Filter = strings.TrimSpace(prefs.Filter)

	return prefs, nil
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
