package core

import (
	"regexp"
	"strconv"
	"strings"
)

// Entry is a single line read from the logcat stream.
type Entry struct {
	Seq       uint64   `json:"seq"`
	SessionID string   `json:"session_id,omitempty"`
	Raw       string   `json:"raw"`
	Time      string   `json:"time,omitempty"`
	PID       int      `json:"pid,omitempty"`
	TID       int      `json:"tid,omitempty"`
	Priority  Priority `json:"priority,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Parsed reports whether the line matched a known logcat format.
func (e Entry) Parsed() bool {
	return e.Priority != PriorityUnknown
}

var (
	// "MM-DD hh:mm:ss.mmm  PID  TID P TAG: message", optionally with a leading year.
	threadtimeRe = regexp.MustCompile(`^((?:\d{4}-)?\d\d-\d\d \d\d:\d\d:\d\d\.\d{3})\s+(\d+)\s+(\d+)\s+([VDIWEFA])\s+(.*?)\s*:\s(.*)$`)
	// "P/TAG(  PID): message"
	briefRe = regexp.MustCompile(`^([VDIWEFA])/(.*?)\(\s*(\d+)\):\s?(.*)$`)
)

// ParseEntry parses a raw logcat line. It never fails: lines in an
// unrecognised format (including the "--------- beginning of" banners)
// come back with only Raw set.
func ParseEntry(line string) Entry {
	line = strings.TrimRight(line, "\r\n")
	e := Entry{Raw: line}

	if m := threadtimeRe.FindStringSubmatch(line); m != nil {
		e.Time = m[1]
		e.PID, _ = strconv.Atoi(m[2])
		e.TID, _ = strconv.Atoi(m[3])
		e.Priority = priorityFromLetter(m[4][0])
		e.Tag = strings.TrimSpace(m[5])
		e.Message = m[6]
		return e
	}
	if m := briefRe.FindStringSubmatch(line); m != nil {
		e.Priority = priorityFromLetter(m[1][0])
		e.Tag = strings.TrimSpace(m[2])
		e.PID, _ = strconv.Atoi(m[3])
		e.Message = m[4]
		return e
	}
	return e
}
