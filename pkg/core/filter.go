package core

import (
	"strconv"
	"strings"
)

// Filter selects which entries are shown or recorded.
type Filter struct {
	Priority Priority `json:"priority,omitempty"`
	Text     string   `json:"text,omitempty"`
}

// NewFilter builds a filter from user input, trimming the text.
func NewFilter(priority Priority, text string) Filter {
	return Filter{Priority: priority, Text: strings.TrimSpace(text)}
}

// IsZero reports whether the filter lets everything through.
func (f Filter) IsZero() bool {
	return f.Priority == PriorityUnknown && strings.TrimSpace(f.Text) == ""
}

// Match reports whether e passes the filter. Text matching is a
// case-insensitive substring test on the raw line. With a priority set,
// entries whose priority could not be parsed are rejected.
func (f Filter) Match(e Entry) bool {
	if f.Priority != PriorityUnknown {
		if e.Priority == PriorityUnknown || e.Priority < f.Priority {
			return false
		}
	}
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Raw), strings.ToLower(text))
}

// Apply returns the entries that match, preserving order.
func (f Filter) Apply(entries []Entry) []Entry {
	if f.IsZero() {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func (f Filter) String() string {
	var parts []string
	if f.Priority != PriorityUnknown {
		parts = append(parts, "priority>="+f.Priority.Letter())
	}
	if t := strings.TrimSpace(f.Text); t != "" {
		parts = append(parts, "text="+strconv.Quote(t))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
