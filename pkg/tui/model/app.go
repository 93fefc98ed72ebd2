package model

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/logcatview/pkg/core"
	"github.com/modoterra/logcatview/pkg/logcat"
	"github.com/modoterra/logcatview/pkg/prefs"
	"github.com/modoterra/logcatview/pkg/record"
	"github.com/modoterra/logcatview/pkg/transport/uds"
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModePrompt
	ModeMenu
	ModeRecords
	ModeConfirmDelete
	ModePreview
)

const (
	requestTimeout = 5 * time.Second
	previewLines   = 200
)

// Client is the part of a daemon connection the TUI uses. *uds.Client
// satisfies it.
type Client interface {
	Call(ctx context.Context, method string, data, out any) error
	OnEvent(h uds.EventHandler)
	Done() <-chan struct{}
	Close() error
}

// Options configure the TUI.
type Options struct {
	Socket    string
	PrefsPath string
	History   int    // local list capacity; zero uses 5000
	ExportDir string // where "s" writes archives; empty uses the working directory

	Dial func(socket string) (Client, error)
	Copy func(text string) error
}

// App is the root Bubble Tea model.
type App struct {
	opts Options

	// Connection
	client    Client
	connected bool
	events    chan uds.Message

	// State
	entries     *logcat.Ring
	lastSession string
	lastSeq     uint64
	filter      core.Filter
	buffer      core.Buffer
	wantBuffer  core.Buffer // restored from prefs, applied once on connect
	session     logcat.Status
	recording   *record.Status

	// UI
	mode          Mode
	promptReturn  Mode
	prompt        *PromptModel
	menu          *MenuModel
	records       recordsPane
	deleteTargets []string
	viewport      viewport.Model
	follow        bool
	keys          keyMap
	recordKeys    recordsKeyMap
	help          help.Model
	width         int
	height        int

	statusMsg string
}

// New creates a TUI model. Filter state is restored from prefs.
func New(opts Options) App {
	if opts.History <= 0 {
		opts.History = 5000
	}
	if opts.Dial == nil {
		opts.Dial = func(socket string) (Client, error) { return uds.Dial(socket) }
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.ExportDir == "" {
		opts.ExportDir, _ = os.Getwd()
	}

	p, _ := prefs.Load(opts.PrefsPath)

	return App{
		opts:       opts,
		events:     make(chan uds.Message, 64),
		entries:    logcat.NewRing(opts.History),
		filter:     p.CoreFilter(),
		buffer:     p.CoreBuffer(),
		wantBuffer: p.CoreBuffer(),
		mode:       ModeNormal,
		records:    newRecordsPane(),
		viewport:   viewport.New(0, 0),
		follow:     true,
		keys:       defaultKeyMap(),
		recordKeys: defaultRecordsKeyMap(),
		help:       help.New(),
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.opts.Dial, a.opts.Socket),
		tea.SetWindowTitle("logcatview"),
	)
}

// connectedMsg indicates a successful daemon connection.
type connectedMsg struct{ client Client }

// disconnectedMsg is sent when the daemon connection drops.
type disconnectedMsg struct{}

// eventMsg carries a server-pushed event.
type eventMsg uds.Message

// daemonStatusMsg carries a full daemon status.
type daemonStatusMsg uds.StatusResponse

// sessionMsg carries a session snapshot returned by a control request.
type sessionMsg logcat.Status

// resumedMsg reports how many paused entries the daemon flushed.
type resumedMsg struct{ flushed int }

// entriesMsg carries history entries. reset replaces the local list.
type entriesMsg struct {
	entries []core.Entry
	reset   bool
}

// recordingMsg carries the recording state after start or stop. st is
// nil once recording stopped.
type recordingMsg struct {
	st   *record.Status
	note string
}

// recordsMsg carries the saved recordings list.
type recordsMsg struct {
	resp uds.ListRecordsResponse
	note string
}

// previewMsg carries the tail of one recording.
type previewMsg struct {
	name  string
	lines []string
}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

// actionResultMsg carries the result of an action.
type actionResultMsg struct{ msg string }

func connectCmd(dial func(string) (Client, error), socket string) tea.Cmd {
	return func() tea.Msg {
		client, err := dial(socket)
		if err != nil {
			return errorMsg{err}
		}
		return connectedMsg{client}
	}
}

// waitEventCmd delivers the next pushed event, or disconnectedMsg once
// the connection is gone.
func waitEventCmd(events <-chan uds.Message, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-events:
			return eventMsg(m)
		case <-done:
			return disconnectedMsg{}
		}
	}
}

func call(c Client, method string, data, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return c.Call(ctx, method, data, out)
}

func fetchStatusCmd(c Client) tea.Cmd {
	return func() tea.Msg {
		var resp uds.StatusResponse
		if err := call(c, uds.MethodStatus, nil, &resp); err != nil {
			return errorMsg{err}
		}
		return daemonStatusMsg(resp)
	}
}

func subscribeCmd(c Client, limit int) tea.Cmd {
	return func() tea.Msg {
		var resp uds.EntriesResponse
		if err := call(c, uds.MethodLogsSubscribe, uds.RecentRequest{Limit: limit}, &resp); err != nil {
			return errorMsg{err}
		}
		return entriesMsg{entries: resp.Entries, reset: true}
	}
}

func pauseCmd(c Client) tea.Cmd {
	return func() tea.Msg {
		var st logcat.Status
		if err := call(c, uds.MethodPause, nil, &st); err != nil {
			return errorMsg{err}
		}
		return sessionMsg(st)
	}
}

func resumeCmd(c Client) tea.Cmd {
	return func() tea.Msg {
		var resp uds.ResumeResponse
		if err := call(c, uds.MethodResume, nil, &resp); err != nil {
			return errorMsg{err}
		}
		return resumedMsg{resp.Flushed}
	}
}

func clearCmd(c Client) tea.Cmd {
	return func() tea.Msg {
		if err := call(c, uds.MethodClear, nil, nil); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{"cleared"}
	}
}

func setSourceCmd(c Client, buffer core.Buffer) tea.Cmd {
	return func() tea.Msg {
		var st logcat.Status
		if err := call(c, uds.MethodSetSource, uds.SetSourceRequest{Buffer: string(buffer)}, &st); err != nil {
			return errorMsg{err}
		}
		return sessionMsg(st)
	}
}

func startRecordingCmd(c Client, name string, f core.Filter) tea.Cmd {
	return func() tea.Msg {
		var st record.Status
		if err := call(c, uds.MethodStartRecording, uds.StartRecordingRequest{Name: name, Filter: f}, &st); err != nil {
			return errorMsg{err}
		}
		return recordingMsg{st: &st, note: "recording to " + st.Name}
	}
}

func stopRecordingCmd(c Client) tea.Cmd {
	return func() tea.Msg {
		var st record.Status
		if err := call(c, uds.MethodStopRecording, nil, &st); err != nil {
			return errorMsg{err}
		}
		return recordingMsg{note: fmt.Sprintf("saved %s (%d lines)", st.Name, st.Entries)}
	}
}

func fetchRecordsCmd(c Client, note string) tea.Cmd {
	return func() tea.Msg {
		var resp uds.ListRecordsResponse
		if err := call(c, uds.MethodListRecords, nil, &resp); err != nil {
			return errorMsg{err}
		}
		return recordsMsg{resp: resp, note: note}
	}
}

func deleteRecordsCmd(c Client, names []string) tea.Cmd {
	return func() tea.Msg {
		var resp uds.DeleteRecordsResponse
		err := call(c, uds.MethodDeleteRecords, uds.DeleteRecordsRequest{Names: names}, &resp)
		if err != nil {
			return errorMsg{err}
		}
		return fetchRecordsCmd(c, fmt.Sprintf("deleted %d record(s)", len(resp.Deleted)))()
	}
}

func exportRecordsCmd(c Client, names []string, dest string) tea.Cmd {
	return func() tea.Msg {
		var resp uds.ExportRecordsResponse
		if err := call(c, uds.MethodExportRecords, uds.ExportRecordsRequest{Names: names, Dest: dest}, &resp); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{"exported to " + resp.Path}
	}
}

func tailRecordCmd(c Client, name string) tea.Cmd {
	return func() tea.Msg {
		var resp uds.TailRecordResponse
		if err := call(c, uds.MethodTailRecord, uds.TailRecordRequest{Name: name, Lines: previewLines}, &resp); err != nil {
			return errorMsg{err}
		}
		return previewMsg{name: name, lines: resp.Lines}
	}
}

func copyCmd(copyFn func(string) error, text, note string) tea.Cmd {
	return func() tea.Msg {
		if err := copyFn(text); err != nil {
			return errorMsg{fmt.Errorf("clipboard: %w", err)}
		}
		return actionResultMsg{note}
	}
}

func savePrefsCmd(path string, p prefs.Prefs) tea.Cmd {
	return func() tea.Msg {
		if err := prefs.Save(path, p); err != nil {
			return errorMsg{fmt.Errorf("save prefs: %w", err)}
		}
		return nil
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := a.update(msg)
	next := m.(App)
	next.layout()
	return next, cmd
}

func (a App) update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.resize()
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.connected = true
		a.statusMsg = "connected"

		events, done := a.events, a.client.Done()
		a.client.OnEvent(func(m uds.Message) {
			select {
			case events <- m:
			case <-done:
			}
		})

		return a, tea.Batch(
			waitEventCmd(events, done),
			fetchStatusCmd(a.client),
			subscribeCmd(a.client, a.entries.Cap()),
		)

	case disconnectedMsg:
		a.client = nil
		a.connected = false
		a.session.Running = false
		a.statusMsg = "daemon disconnected"
		return a, nil

	case eventMsg:
		cmd := a.handleEvent(uds.Message(msg))
		if a.client == nil {
			return a, cmd
		}
		return a, tea.Batch(cmd, waitEventCmd(a.events, a.client.Done()))

	case daemonStatusMsg:
		a.applyStatus(uds.StatusResponse(msg))
		if a.wantBuffer != "" && a.client != nil {
			want := a.wantBuffer
			a.wantBuffer = ""
			if want != a.buffer {
				a.statusMsg = "switching to " + string(want)
				return a, setSourceCmd(a.client, want)
			}
		}
		return a, nil

	case sessionMsg:
		a.session = logcat.Status(msg)
		a.buffer = a.session.Buffer
		return a, nil

	case resumedMsg:
		a.session.Paused = false
		a.statusMsg = fmt.Sprintf("resumed, %d buffered line(s)", msg.flushed)
		return a, nil

	case entriesMsg:
		if msg.reset {
			a.resetEntries(msg.entries)
			return a, nil
		}
		a.appendEntries(msg.entries)
		return a, nil

	case recordingMsg:
		a.recording = msg.st
		a.statusMsg = msg.note
		return a, nil

	case recordsMsg:
		a.records.setRecords(msg.resp.Dir, msg.resp.Records)
		if msg.note != "" {
			a.statusMsg = msg.note
		}
		return a, nil

	case previewMsg:
		if a.mode != ModeRecords {
			return a, nil
		}
		a.records.previewName = msg.name
		a.records.previewLines = msg.lines
		a.mode = ModePreview
		a.viewport.SetContent(strings.Join(msg.lines, "\n"))
		a.viewport.GotoBottom()
		return a, nil

	case actionResultMsg:
		a.statusMsg = msg.msg
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) handleEvent(m uds.Message) tea.Cmd {
	switch m.Method {
	case uds.EventLogsBatch:
		var entries []core.Entry
		if err := m.Decode(&entries); err != nil {
			a.statusMsg = "error: " + err.Error()
			return nil
		}
		a.appendEntries(entries)

	case uds.EventSessionStatus:
		var st uds.StatusResponse
		if err := m.Decode(&st); err == nil {
			a.applyStatus(st)
		}

	case uds.EventSessionEnded:
		var ev uds.SessionEndedEvent
		_ = m.Decode(&ev)
		a.session.Running = false
		a.recording = nil
		a.statusMsg = "logcat ended: " + ev.Error

	case uds.EventRecordsChanged:
		if (a.mode == ModeRecords || a.mode == ModeConfirmDelete) && a.client != nil {
			return fetchRecordsCmd(a.client, "")
		}
	}
	return nil
}

func (a *App) applyStatus(st uds.StatusResponse) {
	a.session = st.Session
	if st.Session.Buffer != "" {
		a.buffer = st.Session.Buffer
	}
	a.recording = st.Recording
}

// resetEntries replaces the list with a history snapshot. Entries from the
// snapshot's session that are already past its last Seq arrived in a batch
// ahead of the snapshot and are kept.
func (a *App) resetEntries(snapshot []core.Entry) {
	entries := snapshot
	if n := len(snapshot); n > 0 {
		last := snapshot[n-1]
		for _, e := range a.entries.Entries() {
			if e.SessionID == last.SessionID && e.Seq > last.Seq {
				entries = append(entries, e)
			}
		}
	}
	a.entries.Reset()
	a.lastSession, a.lastSeq = "", 0
	a.appendEntries(entries)
}

// appendEntries adds entries newer than the last one seen. A new session
// ID restarts the sequence.
func (a *App) appendEntries(entries []core.Entry) {
	added := false
	for _, e := range entries {
		if e.SessionID == a.lastSession && e.Seq <= a.lastSeq {
			continue
		}
		a.lastSession, a.lastSeq = e.SessionID, e.Seq
		a.entries.Push(e)
		added = true
	}
	if added || len(entries) == 0 {
		a.refreshLog()
	}
}

// visible returns the entries that pass the current filter.
func (a App) visible() []core.Entry {
	return a.filter.Apply(a.entries.Entries())
}

func (a *App) refreshLog() {
	if a.mode == ModePreview {
		return
	}
	a.viewport.SetContent(renderEntries(a.visible(), a.viewport.Width))
	if a.follow {
		a.viewport.GotoBottom()
	}
}

// layout fits the viewport between the header and the footer, which grows
// with the help block.
func (a *App) layout() {
	if a.width == 0 {
		return
	}
	h := max(a.height-headerHeight-a.footerHeight(), 1)
	if h == a.viewport.Height {
		return
	}
	a.viewport.Height = h
	if a.follow && a.mode != ModePreview {
		a.viewport.GotoBottom()
	}
}

func (a *App) resize() {
	a.viewport.Width = a.width
	a.viewport.Height = max(a.height-headerHeight-a.footerHeight(), 1)
	if a.mode == ModePreview {
		a.viewport.SetContent(strings.Join(a.records.previewLines, "\n"))
		return
	}
	a.refreshLog()
}

func (a App) currentPrefs() prefs.Prefs {
	return prefs.FromFilter(a.filter, a.buffer)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.mode {
	case ModePrompt:
		if a.prompt != nil {
			return a.prompt.HandleKey(a, msg)
		}
		a.mode = ModeNormal
	case ModeMenu:
		if a.menu != nil {
			return a.menu.HandleKey(a, msg)
		}
		a.mode = ModeNormal
	case ModeRecords:
		return a.handleRecordsKey(msg)
	case ModeConfirmDelete:
		return a.handleConfirmKey(msg)
	case ModePreview:
		return a.handlePreviewKey(msg)
	}

	k := a.keys
	switch {
	case key.Matches(msg, k.Quit):
		return a, tea.Quit

	case key.Matches(msg, k.Filter):
		return a.openPrompt(promptFilter, "filter", a.filter.Text, "text, case-insensitive")

	case key.Matches(msg, k.Priority):
		a.menu = newMenu(menuPriority, "Priority", priorityOptions(), a.filter.Priority.Letter())
		a.mode = ModeMenu

	case key.Matches(msg, k.Buffer):
		names := make([]string, len(core.Buffers))
		for i, b := range core.Buffers {
			names[i] = string(b)
		}
		a.menu = newMenu(menuBuffer, "Buffer", bufferOptions(names), string(a.buffer))
		a.mode = ModeMenu

	case key.Matches(msg, k.Pause):
		if a.client == nil {
			a.statusMsg = "not connected"
			return a, nil
		}
		if a.session.Paused {
			return a, resumeCmd(a.client)
		}
		a.statusMsg = "paused"
		return a, pauseCmd(a.client)

	case key.Matches(msg, k.Clear):
		a.entries.Reset()
		a.refreshLog()
		if a.client == nil {
			return a, nil
		}
		return a, clearCmd(a.client)

	case key.Matches(msg, k.Record):
		if a.client == nil {
			a.statusMsg = "not connected"
			return a, nil
		}
		if a.recording != nil {
			return a, stopRecordingCmd(a.client)
		}
		return a.openPrompt(promptRecordName, "record to", record.DefaultName(time.Now()), "file name")

	case key.Matches(msg, k.Records):
		a.mode = ModeRecords
		if a.client == nil {
			return a, nil
		}
		return a, fetchRecordsCmd(a.client, "")

	case key.Matches(msg, k.Copy):
		vis := a.visible()
		if len(vis) == 0 {
			a.statusMsg = "nothing to copy"
			return a, nil
		}
		lines := make([]string, len(vis))
		for i, e := range vis {
			lines[i] = e.Raw
		}
		return a, copyCmd(a.opts.Copy, strings.Join(lines, "\n"), fmt.Sprintf("copied %d line(s)", len(lines)))

	case key.Matches(msg, k.Help):
		a.help.ShowAll = !a.help.ShowAll

	case key.Matches(msg, k.Up):
		a.viewport.ScrollUp(1)
		a.follow = a.viewport.AtBottom()
	case key.Matches(msg, k.Down):
		a.viewport.ScrollDown(1)
		a.follow = a.viewport.AtBottom()
	case key.Matches(msg, k.PageUp):
		a.viewport.PageUp()
		a.follow = a.viewport.AtBottom()
	case key.Matches(msg, k.PageDown):
		a.viewport.PageDown()
		a.follow = a.viewport.AtBottom()
	case key.Matches(msg, k.Top):
		a.viewport.GotoTop()
		a.follow = false
	case key.Matches(msg, k.Bottom):
		a.viewport.GotoBottom()
		a.follow = true
	}

	return a, nil
}

func (a App) openPrompt(kind promptKind, label, value, placeholder string) (tea.Model, tea.Cmd) {
	a.promptReturn = a.mode
	a.prompt = newPrompt(kind, label, value, placeholder)
	a.mode = ModePrompt
	return a, textinput.Blink
}

func (a App) submitPrompt(kind promptKind, value string) (tea.Model, tea.Cmd) {
	switch kind {
	case promptFilter:
		a.filter = core.NewFilter(a.filter.Priority, value)
		a.refreshLog()
		return a, savePrefsCmd(a.opts.PrefsPath, a.currentPrefs())

	case promptRecordName:
		if a.client == nil {
			a.statusMsg = "not connected"
			return a, nil
		}
		if value != "" {
			if err := record.ValidateName(value); err != nil {
				a.statusMsg = "error: " + err.Error()
				return a, nil
			}
		}
		return a, startRecordingCmd(a.client, value, a.filter)
	}
	return a, nil
}

func (a App) submitMenu(kind menuKind, value string) (tea.Model, tea.Cmd) {
	switch kind {
	case menuPriority:
		p, err := core.ParsePriority(value)
		if err != nil {
			a.statusMsg = "error: " + err.Error()
			return a, nil
		}
		a.filter = core.NewFilter(p, a.filter.Text)
		a.refreshLog()
		return a, savePrefsCmd(a.opts.PrefsPath, a.currentPrefs())

	case menuBuffer:
		b, err := core.ParseBuffer(value)
		if err != nil {
			a.statusMsg = "error: " + err.Error()
			return a, nil
		}
		if b == a.buffer && a.session.Running {
			return a, nil
		}
		a.buffer = b
		a.wantBuffer = ""
		a.entries.Reset()
		a.refreshLog()
		cmds := []tea.Cmd{savePrefsCmd(a.opts.PrefsPath, a.currentPrefs())}
		if a.client != nil {
			a.statusMsg = "switching to " + string(b)
			cmds = append(cmds, setSourceCmd(a.client, b))
		}
		return a, tea.Batch(cmds...)
	}
	return a, nil
}

func (a App) handleRecordsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := a.recordKeys
	switch {
	case key.Matches(msg, k.Back):
		a.records.clearSelection()
		a.mode = ModeNormal
		a.refreshLog()

	case key.Matches(msg, k.Up):
		a.records.move(-1)
	case key.Matches(msg, k.Down):
		a.records.move(1)
	case key.Matches(msg, k.Toggle):
		a.records.toggle()
	case key.Matches(msg, k.SelectAll):
		a.records.toggleAll()

	case key.Matches(msg, k.Delete):
		targets := a.records.targets()
		if len(targets) == 0 {
			a.statusMsg = "no records"
			return a, nil
		}
		a.deleteTargets = targets
		a.mode = ModeConfirmDelete
		a.statusMsg = fmt.Sprintf("Delete %d record(s)? (y/n)", len(targets))

	case key.Matches(msg, k.Export):
		targets := a.records.targets()
		if len(targets) == 0 || a.client == nil {
			a.statusMsg = "nothing to export"
			return a, nil
		}
		a.statusMsg = "exporting..."
		return a, exportRecordsCmd(a.client, targets, a.opts.ExportDir)

	case key.Matches(msg, k.Copy):
		targets := a.records.targets()
		if len(targets) == 0 {
			a.statusMsg = "nothing to copy"
			return a, nil
		}
		paths := a.records.paths(targets)
		return a, copyCmd(a.opts.Copy, strings.Join(paths, "\n"), fmt.Sprintf("copied %d path(s)", len(paths)))

	case key.Matches(msg, k.Preview):
		info, ok := a.records.current()
		if !ok || a.client == nil {
			return a, nil
		}
		return a, tailRecordCmd(a.client, info.Name)

	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit
	}
	return a, nil
}

func (a App) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	names := a.deleteTargets
	a.deleteTargets = nil
	a.mode = ModeRecords

	switch msg.String() {
	case "y", "Y":
		if a.client == nil {
			a.statusMsg = "not connected"
			return a, nil
		}
		a.records.clearSelection()
		a.statusMsg = "deleting..."
		return a, deleteRecordsCmd(a.client, names)
	default:
		a.statusMsg = "delete cancelled"
		return a, nil
	}
}

func (a App) handlePreviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.recordKeys.Back), msg.String() == "q":
		a.records.closePreview()
		a.mode = ModeRecords
		a.refreshLog()
		return a, nil
	}
	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}
