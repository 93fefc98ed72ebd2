package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/logcatview/pkg/core"
)

const headerHeight = 1

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	pausedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1)

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	priorityStyles = map[core.Priority]lipgloss.Style{
		core.PriorityVerbose: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		core.PriorityDebug:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		core.PriorityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		core.PriorityWarn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		core.PriorityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		core.PriorityFatal:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("201")),
		core.PriorityAssert:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("201")),
	}
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	bodyH := a.viewport.Height
	var body string
	switch {
	case a.mode == ModeMenu && a.menu != nil:
		body = lipgloss.Place(a.width, bodyH, lipgloss.Center, lipgloss.Center, a.menu.View())
	case a.mode == ModeRecords || a.mode == ModeConfirmDelete:
		body = a.renderRecords(a.width, bodyH)
	case a.mode != ModePreview && a.entries.Len() == 0:
		body = lipgloss.Place(a.width, bodyH, lipgloss.Center, lipgloss.Center, dimStyle.Render("no log output"))
	default:
		body = a.viewport.View()
	}

	parts := []string{a.renderHeader(), body, a.renderStatusLine()}
	if h := a.helpView(); h != "" {
		parts = append(parts, h)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a App) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("logcatview"))

	if a.mode == ModePreview {
		b.WriteString(" " + dimStyle.Render("preview") + " " + a.records.previewName)
		return b.String()
	}

	fmt.Fprintf(&b, " %s", a.buffer)
	if !a.filter.IsZero() {
		b.WriteString(" " + dimStyle.Render("["+a.filter.String()+"]"))
	}
	if a.session.Paused {
		b.WriteString(" " + pausedStyle.Render("[PAUSED]"))
	}
	if a.recording != nil {
		b.WriteString(" " + recStyle.Render("[REC "+a.recording.Name+"]"))
	}
	switch {
	case !a.connected:
		b.WriteString(" " + dimStyle.Render("(offline)"))
	case !a.session.Running:
		b.WriteString(" " + dimStyle.Render("(stopped)"))
	}
	if !a.follow {
		b.WriteString(" " + dimStyle.Render("(scrolled)"))
	}
	return b.String()
}

func (a App) renderStatusLine() string {
	if a.mode == ModePrompt && a.prompt != nil {
		return a.prompt.View()
	}

	left := a.statusMsg
	right := ""
	if a.connected {
		right = fmt.Sprintf("%d/%d shown", len(a.visible()), a.entries.Len())
		if a.session.Backlog > 0 {
			right += fmt.Sprintf("  backlog %d", a.session.Backlog)
		}
		if a.session.Dropped > 0 {
			right += fmt.Sprintf("  dropped %d", a.session.Dropped)
		}
	}

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func (a App) helpView() string {
	switch a.mode {
	case ModeNormal:
		return a.help.View(a.keys)
	case ModeRecords:
		return a.help.View(a.recordKeys)
	case ModeConfirmDelete:
		return helpStyle.Render("y:delete  any other key:cancel")
	case ModePreview:
		return helpStyle.Render("j/k:scroll  esc:back")
	}
	return ""
}

// footerHeight is the status line plus the help block for the current mode.
func (a App) footerHeight() int {
	h := 1
	if v := a.helpView(); v != "" {
		h += lipgloss.Height(v)
	}
	return h
}

func (a App) renderRecords(w, h int) string {
	var b strings.Builder
	title := " Records "
	if a.records.dir != "" {
		title += dimStyle.Render(a.records.dir)
	}
	b.WriteString(titleStyle.Render(title) + "\n")

	if len(a.records.records) == 0 {
		b.WriteString(dimStyle.Render("  no recordings"))
		return lipgloss.NewStyle().Height(h).Render(b.String())
	}

	active := ""
	if a.recording != nil {
		active = a.recording.Name
	}

	maxVisible := max(h-1, 1)
	start := 0
	if a.records.cursor >= maxVisible {
		start = a.records.cursor - maxVisible + 1
	}

	for i := start; i < len(a.records.records) && i-start < maxVisible; i++ {
		info := a.records.records[i]
		mark := "[ ]"
		if a.records.selected[info.Name] {
			mark = okStyle.Render("[x]")
		}
		meta := fmt.Sprintf("%8s  %s", formatBytes(uint64(info.Size)), info.ModTime.Format("2006-01-02 15:04:05"))
		nameW := max(w-lipgloss.Width(meta)-10, 8)
		name := fmt.Sprintf("%-*s", nameW, truncate(info.Name, nameW))
		line := fmt.Sprintf(" %s %s  %s", mark, name, dimStyle.Render(meta))
		if info.Name == active {
			line += " " + recStyle.Render("●")
		}
		if i == a.records.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		if i+1 < len(a.records.records) && i-start+1 < maxVisible {
			b.WriteString("\n")
		}
	}
	return lipgloss.NewStyle().Height(h).Render(b.String())
}

// renderEntries colours each entry by priority. Lines wider than width are
// cut.
func renderEntries(entries []core.Entry, width int) string {
	var b strings.Builder
	for i, e := range entries {
		line := e.Raw
		if width > 0 {
			line = truncate(line, width)
		}
		if style, ok := priorityStyles[e.Priority]; ok {
			line = style.Render(line)
		}
		b.WriteString(line)
		if i < len(entries)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-3]) + "..."
}

func formatBytes(b uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
