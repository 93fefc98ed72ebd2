package model

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// promptKind says what a submitted prompt value is used for.
type promptKind int

const (
	promptFilter promptKind = iota
	promptRecordName
)

// PromptModel is a one-line text input shown above the status bar.
type PromptModel struct {
	kind  promptKind
	label string
	input textinput.Model
}

func newPrompt(kind promptKind, label, value, placeholder string) *PromptModel {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = placeholder
	ti.CharLimit = 256
	ti.SetValue(value)
	ti.CursorEnd()
	ti.Focus()
	return &PromptModel{kind: kind, label: label, input: ti}
}

// Value returns the trimmed input.
func (p *PromptModel) Value() string {
	return strings.TrimSpace(p.input.Value())
}

// HandleKey processes key events in prompt mode.
func (p *PromptModel) HandleKey(a App, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = a.promptReturn
		a.prompt = nil
		return a, nil

	case "enter":
		value := p.Value()
		a.mode = a.promptReturn
		a.prompt = nil
		return a.submitPrompt(p.kind, value)

	default:
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		return a, cmd
	}
}

// View renders the prompt line.
func (p *PromptModel) View() string {
	return titleStyle.Render(p.label+": ") + p.input.View() + "  " + helpStyle.Render("enter:apply esc:cancel")
}

// menuOption is one choice in a MenuModel. Key selects it directly.
type menuOption struct {
	Key   string
	Label string
	Value string
}

// menuKind says what a chosen menu value is used for.
type menuKind int

const (
	menuPriority menuKind = iota
	menuBuffer
)

// MenuModel is a single-choice popup menu.
type MenuModel struct {
	kind     menuKind
	title    string
	options  []menuOption
	selected int
}

func newMenu(kind menuKind, title string, options []menuOption, current string) *MenuModel {
	m := &MenuModel{kind: kind, title: title, options: options}
	for i, o := range options {
		if o.Value == current {
			m.selected = i
		}
	}
	return m
}

// HandleKey processes key events while the menu is open.
func (m *MenuModel) HandleKey(a App, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		a.mode = ModeNormal
		a.menu = nil
		return a, nil
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return a, nil
	case "down", "j":
		if m.selected < len(m.options)-1 {
			m.selected++
		}
		return a, nil
	case "enter":
		return m.choose(a, m.options[m.selected])
	}

	for _, o := range m.options {
		if msg.String() == o.Key {
			return m.choose(a, o)
		}
	}
	return a, nil
}

func (m *MenuModel) choose(a App, o menuOption) (tea.Model, tea.Cmd) {
	a.mode = ModeNormal
	a.menu = nil
	return a.submitMenu(m.kind, o.Value)
}

// View renders the menu as a boxed list.
func (m *MenuModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" "+m.title+" ") + "\n")
	for i, o := range m.options {
		prefix := "  "
		if i == m.selected {
			prefix = "▸ "
		}
		line := prefix + dimStyle.Render(o.Key+") ") + o.Label
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(helpStyle.Render("  key/enter:choose  esc:cancel"))
	return paneStyle.Render(b.String())
}

func priorityOptions() []menuOption {
	return []menuOption{
		{Key: "a", Label: "all", Value: ""},
		{Key: "v", Label: "verbose", Value: "V"},
		{Key: "d", Label: "debug", Value: "D"},
		{Key: "i", Label: "info", Value: "I"},
		{Key: "w", Label: "warn", Value: "W"},
		{Key: "e", Label: "error", Value: "E"},
		{Key: "f", Label: "fatal", Value: "F"},
	}
}

func bufferOptions(buffers []string) []menuOption {
	opts := make([]menuOption, 0, len(buffers))
	for i, b := range buffers {
		opts = append(opts, menuOption{Key: string(rune('1' + i)), Label: b, Value: b})
	}
	return opts
}
