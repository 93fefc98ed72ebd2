package core

import (
	"fmt"
	"strings"
)

// Buffer names a logcat ring buffer, passed to logcat as "-b <buffer>".
type Buffer string

const (
	BufferMain    Buffer = "main"
	BufferSystem  Buffer = "system"
	BufferRadio   Buffer = "radio"
	BufferEvents  Buffer = "events"
	BufferCrash   Buffer = "crash"
	BufferKernel  Buffer = "kernel"
	BufferAll     Buffer = "all"
	BufferDefault Buffer = "default"
)

// Buffers lists every buffer logcat accepts, in menu order.
var Buffers = []Buffer{BufferMain, BufferSystem, BufferRadio, BufferEvents, BufferCrash, BufferKernel, BufferAll, BufferDefault}

// ParseBuffer validates a buffer name. The empty string selects main.
func ParseBuffer(s string) (Buffer, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return BufferMain, nil
	}
	for _, b := range Buffers {
		if string(b) == name {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown logcat buffer %q", s)
}
