package core

import (
	"fmt"
	"strings"
)

// Priority is a logcat message priority. Higher values are more severe.
type Priority int

const (
	PriorityUnknown Priority = iota
	PriorityVerbose
	PriorityDebug
	PriorityInfo
	PriorityWarn
	PriorityError
	PriorityFatal
	PriorityAssert
)

var priorityLetters = [...]string{"", "V", "D", "I", "W", "E", "F", "A"}

var priorityNames = [...]string{"all", "verbose", "debug", "info", "warn", "error", "fatal", "assert"}

// Letter returns the single-letter logcat form (V, D, I, ...), or "" when unknown.
func (p Priority) Letter() string {
	if p < PriorityUnknown || p > PriorityAssert {
		return ""
	}
	return priorityLetters[p]
}

func (p Priority) String() string {
	if p < PriorityUnknown || p > PriorityAssert {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority accepts a logcat letter or a level name in any case.
// The empty string and "all" map to PriorityUnknown.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "*":
		return PriorityUnknown, nil
	case "v", "verbose":
		return PriorityVerbose, nil
	case "d", "debug":
		return PriorityDebug, nil
	case "i", "info":
		return PriorityInfo, nil
	case "w", "warn", "warning":
		return PriorityWarn, nil
	case "e", "error":
		return PriorityError, nil
	case "f", "fatal":
		return PriorityFatal, nil
	case "a", "assert":
		return PriorityAssert, nil
	default:
		return PriorityUnknown, fmt.Errorf("unknown priority %q", s)
	}
}

func priorityFromLetter(b byte) Priority {
	switch b {
	case 'V':
		return PriorityVerbose
	case 'D':
		return PriorityDebug
	case 'I':
		return PriorityInfo
	case 'W':
		return PriorityWarn
	case 'E':
		return PriorityError
	case 'F':
		return PriorityFatal
	case 'A':
		return PriorityAssert
	default:
		return PriorityUnknown
	}
}
