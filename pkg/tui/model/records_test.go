package model

import (
	"strings"
	"testing"

	"github.com/modoterra/logcatview/pkg/record"
)

func infos(names ...string) []record.Info {
	out := make([]record.Info, len(names))
	for i, n := range names {
		out[i] = record.Info{Name: n}
	}
	return out
}

func TestRecordsPaneToggleAll(t *testing.T) {
	p := newRecordsPane()
	p.setRecords("/r", infos("a.log", "b.log", "c.log"))

	p.toggleAll()
	if len(p.selected) != 3 {
		t.Fatalf("selected = %v", p.selected)
	}
	p.toggleAll()
	if len(p.selected) != 0 {
		t.Fatalf("second toggleAll should deselect, got %v", p.selected)
	}

	p.move(1)
	p.toggle()
	p.toggleAll()
	if len(p.selected) != 3 {
		t.Fatalf("partial selection should become all, got %v", p.selected)
	}
}

func TestRecordsPaneTargets(t *testing.T) {
	p := newRecordsPane()
	p.setRecords("/r", infos("a.log", "b.log", "c.log"))

	if got := p.targets(); len(got) != 1 || got[0] != "a.log" {
		t.Fatalf("targets without selection = %v", got)
	}

	p.move(2)
	p.toggle()
	p.move(-2)
	p.toggle()
	if got := strings.Join(p.targets(), ","); got != "a.log,c.log" {
		t.Errorf("targets = %s", got)
	}
	if got := strings.Join(p.paths(p.targets()), ","); got != "/r/a.log,/r/c.log" {
		t.Errorf("paths = %s", got)
	}

	p.toggle()
	if got := strings.Join(p.targets(), ","); got != "c.log" {
		t.Errorf("after untoggle = %s", got)
	}
}

func TestRecordsPaneSetRecordsPrunes(t *testing.T) {
	p := newRecordsPane()
	p.setRecords("/r", infos("a.log", "b.log", "c.log"))
	p.toggleAll()
	p.move(5)
	if p.cursor != 2 {
		t.Fatalf("cursor = %d, want clamp to 2", p.cursor)
	}

	p.setRecords("/r", infos("b.log"))
	if len(p.selected) != 1 || !p.selected["b.log"] {
		t.Errorf("selected = %v", p.selected)
	}
	if p.cursor != 0 {
		t.Errorf("cursor = %d", p.cursor)
	}

	p.setRecords("/r", nil)
	if got := p.targets(); len(got) != 0 {
		t.Errorf("targets on empty = %v", got)
	}
	p.move(1)
	p.toggle()
}
