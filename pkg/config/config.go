package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/modoterra/logcatview/pkg/core"
	"github.com/modoterra/logcatview/pkg/logcat"
)

// FileName is the config file name looked up in the user's config dir.
const FileName = "logcatview.yaml"

// Config represents a logcatview.yaml configuration file.
type Config struct {
	Version        int           `yaml:"version"                    json:"version"`
	Command        []string      `yaml:"command"                    json:"command"`
	Serial         string        `yaml:"serial,omitempty"           json:"serial,omitempty"`
	Buffer         string        `yaml:"buffer"                     json:"buffer"`
	Format         string        `yaml:"format"                     json:"format"`
	History        int           `yaml:"history"                    json:"history"`
	Backlog        int           `yaml:"backlog"                    json:"backlog"`
	RecordsDir     string        `yaml:"records_dir"                json:"records_dir"`
	FlushInterval  time.Duration `yaml:"flush_interval"             json:"flush_interval"`
	MaxRecordBytes int64         `yaml:"max_record_bytes,omitempty" json:"max_record_bytes,omitempty"`
	Socket         string        `yaml:"socket"                     json:"socket"`
	MetricsAddr    string        `yaml:"metrics_addr,omitempty"     json:"metrics_addr,omitempty"`
	Autostart      bool          `yaml:"autostart"                  json:"autostart"`
	LogLevel       string        `yaml:"log_level,omitempty"        json:"log_level,omitempty"`

	// FilePath is where the config was loaded from. Not serialized.
	FilePath string `yaml:"-" json:"-"`
}

// Formats lists the logcat -v formats accepted in config.
var Formats = []string{"threadtime", "brief", "time", "process", "tag", "thread", "raw", "long"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:       1,
		Command:       append([]string(nil), logcat.DefaultCommand...),
		Buffer:        string(core.BufferMain),
		Format:        "threadtime",
		History:       5000,
		Backlog:       2000,
		RecordsDir:    "${home}/.local/share/logcatview/records",
		FlushInterval: 5 * time.Second,
		Socket:        "/tmp/logcatview.sock",
		Autostart:     true,
		LogLevel:      "info",
	}
}

// DefaultPath returns ~/.config/logcatview/logcatview.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(dir, "logcatview", FileName)
}

// Load reads and parses the config at path. An empty path means
// DefaultPath. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.interpolate()
			cfg.FilePath = path
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.FilePath = path
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and expands ${home}.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.interpolate()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LogcatCommand returns the argv prefix with the device serial applied.
func (c *Config) LogcatCommand() logcat.Command {
	return logcat.Command(c.Command).WithSerial(c.Serial)
}

func (c *Config) interpolate() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(s string) string {
		s = strings.ReplaceAll(s, "${home}", home)
		if s == "~" || strings.HasPrefix(s, "~/") {
			s = filepath.Join(home, strings.TrimPrefix(s, "~"))
		}
		return s
	}
	c.RecordsDir = expand(c.RecordsDir)
	c.Socket = expand(c.Socket)
	for i, arg := range c.Command {
		c.Command[i] = expand(arg)
	}
}
