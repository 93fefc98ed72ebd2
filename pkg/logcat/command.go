package logcat

import (
	"path/filepath"

	"github.com/modoterra/logcatview/pkg/core"
)

// Command is the argv prefix used to launch logcat, e.g. ["adb", "logcat"]
// or ["/system/bin/logcat"].
type Command []string

// DefaultCommand runs logcat through adb on the host.
var DefaultCommand = Command{"adb", "logcat"}

// WithSerial targets a specific device when the command goes through adb.
// Other commands are returned unchanged.
func (c Command) WithSerial(serial string) Command {
	if serial == "" || len(c) == 0 || !isADB(c[0]) {
		return c
	}
	out := make(Command, 0, len(c)+2)
	out = append(out, c[0], "-s", serial)
	return append(out, c[1:]...)
}

// Args returns the full argv: the command followed by "-b <buffer>" and,
// when format is set, "-v <format>".
func (c Command) Args(buffer core.Buffer, format string) []string {
	args := make([]string, 0, len(c)+4)
	args = append(args, c...)
	if buffer != "" {
		args = append(args, "-b", string(buffer))
	}
	if format != "" {
		args = append(args, "-v", format)
	}
	return args
}

func isADB(bin string) bool {
	return filepath.Base(bin) == "adb"
}
