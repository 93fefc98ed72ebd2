package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/modoterra/logcatview/pkg/core"
)

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	if len(c.Command) == 0 || strings.TrimSpace(c.Command[0]) == "" {
		errs = append(errs, fmt.Errorf("command is required"))
	} else if c.Serial != "" && filepath.Base(c.Command[0]) != "adb" {
		errs = append(errs, fmt.Errorf("serial %q requires an adb command, got %q", c.Serial, c.Command[0]))
	}

	if _, err := core.ParseBuffer(c.Buffer); err != nil {
		errs = append(errs, err)
	}
	if c.Format != "" && !slices.Contains(Formats, c.Format) {
		errs = append(errs, fmt.Errorf("format must be one of %s; got %q", strings.Join(Formats, ", "), c.Format))
	}

	if c.History <= 0 {
		errs = append(errs, fmt.Errorf("history must be positive, got %d", c.History))
	}
	if c.Backlog < 0 {
		errs = append(errs, fmt.Errorf("backlog must not be negative, got %d", c.Backlog))
	}

	if strings.TrimSpace(c.RecordsDir) == "" {
		errs = append(errs, fmt.Errorf("records_dir is required"))
	}
	if c.FlushInterval < 0 {
		errs = append(errs, fmt.Errorf("flush_interval must not be negative, got %s", c.FlushInterval))
	}
	if c.MaxRecordBytes < 0 {
		errs = append(errs, fmt.Errorf("max_record_bytes must not be negative, got %d", c.MaxRecordBytes))
	}

	if strings.TrimSpace(c.Socket) == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn, or error; got %q", c.LogLevel))
	}

	return errs
}
