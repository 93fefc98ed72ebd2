package model

import (
	"path/filepath"

	"github.com/modoterra/logcatview/pkg/record"
)

// recordsPane is the saved-recordings list with multi-select.
type recordsPane struct {
	dir      string
	records  []record.Info
	cursor   int
	selected map[string]bool

	previewName  string
	previewLines []string
}

func newRecordsPane() recordsPane {
	return recordsPane{selected: make(map[string]bool)}
}

// setRecords replaces the list, dropping selections for files that are gone.
func (p *recordsPane) setRecords(dir string, infos []record.Info) {
	p.dir = dir
	p.records = infos
	present := make(map[string]bool, len(infos))
	for _, info := range infos {
		present[info.Name] = true
	}
	for name := range p.selected {
		if !present[name] {
			delete(p.selected, name)
		}
	}
	if p.cursor >= len(infos) {
		p.cursor = max(0, len(infos)-1)
	}
}

func (p *recordsPane) move(delta int) {
	if len(p.records) == 0 {
		return
	}
	p.cursor = min(max(p.cursor+delta, 0), len(p.records)-1)
}

func (p *recordsPane) current() (record.Info, bool) {
	if p.cursor < 0 || p.cursor >= len(p.records) {
		return record.Info{}, false
	}
	return p.records[p.cursor], true
}

func (p *recordsPane) toggle() {
	info, ok := p.current()
	if !ok {
		return
	}
	if p.selected[info.Name] {
		delete(p.selected, info.Name)
	} else {
		p.selected[info.Name] = true
	}
}

// toggleAll selects every record, or clears the selection when all are
// already selected.
func (p *recordsPane) toggleAll() {
	if len(p.records) > 0 && len(p.selected) == len(p.records) {
		p.clearSelection()
		return
	}
	for _, info := range p.records {
		p.selected[info.Name] = true
	}
}

func (p *recordsPane) clearSelection() {
	clear(p.selected)
}

// targets returns the selected names in list order, or the record under
// the cursor when nothing is selected.
func (p *recordsPane) targets() []string {
	var names []string
	for _, info := range p.records {
		if p.selected[info.Name] {
			names = append(names, info.Name)
		}
	}
	if len(names) == 0 {
		if info, ok := p.current(); ok {
			names = []string{info.Name}
		}
	}
	return names
}

func (p *recordsPane) paths(names []string) []string {
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(p.dir, name)
	}
	return paths
}

func (p *recordsPane) closePreview() {
	p.previewName = ""
	p.previewLines = nil
}
