package core

import "testing"

func TestParseEntry(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantPrio Priority
		wantTag  string
		wantPID  int
		wantTID  int
		wantMsg  string
		wantTime string
	}{
		{
			name:     "threadtime",
			line:     "01-02 03:04:05.678  1234  5678 I ActivityManager: Start proc 42:com.example/u0a1",
			wantPrio: PriorityInfo,
			wantTag:  "ActivityManager",
			wantPID:  1234,
			wantTID:  5678,
			wantMsg:  "Start proc 42:com.example/u0a1",
			wantTime: "01-02 03:04:05.678",
		},
		{
			name:     "threadtime with year and padded tag",
			line:     "2024-01-02 03:04:05.678   77   78 E chatty  : uid=1000 expire 3 lines",
			wantPrio: PriorityError,
			wantTag:  "chatty",
			wantPID:  77,
			wantTID:  78,
			wantMsg:  "uid=1000 expire 3 lines",
			wantTime: "2024-01-02 03:04:05.678",
		},
		{
			name:     "brief",
			line:     "W/PackageManager(  512): Unable to start service",
			wantPrio: PriorityWarn,
			wantTag:  "PackageManager",
			wantPID:  512,
			wantMsg:  "Unable to start service",
		},
		{
			name: "banner",
			line: "--------- beginning of main",
		},
		{
			name: "garbage",
			line: "not a logcat line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ParseEntry(tt.line)
			if e.Raw != tt.line {
				t.Errorf("Raw: got %q, want %q", e.Raw, tt.line)
			}
			if e.Priority != tt.wantPrio {
				t.Errorf("Priority: got %v, want %v", e.Priority, tt.wantPrio)
			}
			if e.Tag != tt.wantTag {
				t.Errorf("Tag: got %q, want %q", e.Tag, tt.wantTag)
			}
			if e.PID != tt.wantPID {
				t.Errorf("PID: got %d, want %d", e.PID, tt.wantPID)
			}
			if e.TID != tt.wantTID {
				t.Errorf("TID: got %d, want %d", e.TID, tt.wantTID)
			}
			if e.Message != tt.wantMsg {
				t.Errorf("Message: got %q, want %q", e.Message, tt.wantMsg)
			}
			if e.Time != tt.wantTime {
				t.Errorf("Time: got %q, want %q", e.Time, tt.wantTime)
			}
		})
	}
}

func TestParseEntryTrimsLineEnding(t *testing.T) {
	e := ParseEntry("D/Tag( 1): hi\r\n")
	if e.Raw != "D/Tag( 1): hi" {
		t.Errorf("Raw: got %q", e.Raw)
	}
	if !e.Parsed() {
		t.Error("expected parsed entry")
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityUnknown, false},
		{"all", PriorityUnknown, false},
		{"D", PriorityDebug, false},
		{"debug", PriorityDebug, false},
		{"Warning", PriorityWarn, false},
		{"e", PriorityError, false},
		{"F", PriorityFatal, false},
		{"loud", PriorityUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriorityLetter(t *testing.T) {
	if PriorityWarn.Letter() != "W" {
		t.Errorf("Warn letter: got %q", PriorityWarn.Letter())
	}
	if PriorityUnknown.Letter() != "" {
		t.Errorf("Unknown letter: got %q", PriorityUnknown.Letter())
	}
	if Priority(42).String() != "priority(42)" {
		t.Errorf("out of range: got %q", Priority(42).String())
	}
}

func TestParseBuffer(t *testing.T) {
	b, err := ParseBuffer("")
	if err != nil || b != BufferMain {
		t.Errorf("empty: got %q, %v", b, err)
	}
	b, err = ParseBuffer(" Radio ")
	if err != nil || b != BufferRadio {
		t.Errorf("radio: got %q, %v", b, err)
	}
	if _, err := ParseBuffer("main; rm -rf /"); err == nil {
		t.Error("expected error for bogus buffer")
	}
}
