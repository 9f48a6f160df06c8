// Package tui is the operator console: it follows a run's events and answers
// the halted-program prompt.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/portmark/internal/dispatch"
	"github.com/mattjoyce/portmark/internal/events"
	"github.com/mattjoyce/portmark/internal/operator"
	"github.com/mattjoyce/portmark/internal/task"
)

const eventLogSize = 12

// Options configure a console.
type Options struct {
	Title string
	// Reconnect re-opens the feed when it closes. Remote consoles set it.
	Reconnect bool
	// QuitOnFinish ends the program once the run reports it finished.
	QuitOnFinish bool
}

// Model is the BubbleTea model for the operator console.
type Model struct {
	ctx    context.Context
	feed   Feed
	submit Submitter
	opts   Options

	keys  keyMap
	help  help.Model
	theme Theme
	width int

	ch        <-chan events.Event
	connected bool

	total       int
	remaining   int
	dispatched  int
	lastTask    string
	outstanding map[task.Kind]int
	observed    map[string]any
	cycle       int

	prompting  bool
	prompt     string
	submitting bool
	draining   bool
	finished   bool
	failed     bool
	summary    string
	lastError  string

	eventLog []string
}

// New creates a console reading from feed and answering through submit.
func New(ctx context.Context, feed Feed, submit Submitter, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "PORTMARK"
	}
	return Model{
		ctx:         ctx,
		feed:        feed,
		submit:      submit,
		opts:        opts,
		keys:        defaultKeys(),
		help:        help.New(),
		theme:       NewDefaultTheme(),
		outstanding: make(map[task.Kind]int),
		observed:    make(map[string]any),
	}
}

func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return reconnectMsg{} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case reconnectMsg:
		m.ch = m.feed.Events(m.ctx)
		m.connected = true
		return m, receiveNextEvent(m.ch)

	case feedClosedMsg:
		m.connected = false
		if m.finished && m.opts.QuitOnFinish {
			return m, tea.Quit
		}
		if !m.opts.Reconnect || m.ctx.Err() != nil {
			return m, nil
		}
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case eventMsg:
		m.lastError = ""
		m.apply(events.Event(msg))
		if m.finished && m.opts.QuitOnFinish {
			return m, tea.Quit
		}
		return m, receiveNextEvent(m.ch)

	case submittedMsg:
		m.submitting = false
		if msg.err != nil {
			m.lastError = fmt.Sprintf("%s not accepted: %v", msg.decision, msg.err)
			return m, nil
		}
		m.prompting = false
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	d := m.keys.decision(msg)
	if !d.Valid() || !m.prompting || m.submitting || m.submit == nil {
		return m, nil
	}
	m.submitting = true
	return m, submitDecision(m.ctx, m.submit, d)
}

// apply folds one engine event into the console state.
func (m *Model) apply(ev events.Event) {
	var data map[string]json.RawMessage
	_ = json.Unmarshal(ev.Data, &data)
	intField := func(name string) int {
		var n int
		_ = json.Unmarshal(data[name], &n)
		return n
	}
	strField := func(name string) string {
		var s string
		_ = json.Unmarshal(data[name], &s)
		return s
	}

	line := ev.Type
	switch ev.Type {
	case events.RunStarted:
		m.total = intField("tasks")
		m.remaining = m.total
		m.finished = false
		m.failed = false
		line = fmt.Sprintf("run started with %d tasks", m.total)

	case events.TaskSent:
		kind := task.Kind(strField("kind"))
		m.dispatched++
		m.remaining = intField("remaining")
		m.lastTask = strField("task")
		if kind != task.KindGantry {
			m.outstanding[kind]++
		}
		line = "sent " + m.lastTask

	case events.TaskAcked:
		kind := task.Kind(strField("kind"))
		if m.outstanding[kind] > 0 {
			m.outstanding[kind]--
		}
		line = fmt.Sprintf("%s acknowledged", kind)

	case events.StatusChanged:
		m.cycle = intField("cycle")
		var changes []dispatch.Change
		_ = json.Unmarshal(data["changes"], &changes)
		parts := make([]string, 0, len(changes))
		for _, c := range changes {
			m.observed[c.Field] = c.To
			parts = append(parts, fmt.Sprintf("%s=%v", c.Field, c.To))
		}
		line = strings.Join(parts, " ")

	case events.RecoveryRequired:
		m.prompting = true
		m.prompt = strField("prompt")
		line = "controller program halted"

	case events.RecoveryDecided:
		m.prompting = false
		m.submitting = false
		line = "operator chose " + strField("decision")

	case events.Draining:
		m.draining = true
		line = "draining outstanding handshakes"

	case events.RunFinished:
		m.finished = true
		m.prompting = false
		var res dispatch.Result
		_ = json.Unmarshal(data["result"], &res)
		m.summary = fmt.Sprintf("%d dispatched, %d remaining, %d cycles", res.Dispatched, res.Remaining, res.Cycles)
		if e := strField("error"); e != "" {
			m.failed = true
			m.summary += ": " + e
		}
		line = "run finished: " + m.summary
	}

	stamp := ev.At.Local().Format("15:04:05")
	m.eventLog = append([]string{stamp + " " + line}, m.eventLog...)
	if len(m.eventLog) > eventLogSize {
		m.eventLog = m.eventLog[:eventLogSize]
	}
}

func (m Model) View() string {
	t := m.theme

	state := t.StatusRunning.Render("RUNNING")
	switch {
	case m.failed:
		state = t.StatusFailed.Render("STOPPED")
	case m.finished:
		state = t.StatusOK.Render("FINISHED")
	case m.prompting:
		state = t.StatusFailed.Render("HALTED")
	case m.draining:
		state = t.Highlight.Render("DRAINING")
	case !m.connected:
		state = t.StatusQueued.Render("CONNECTING")
	}
	title := t.Title.Render(m.opts.Title) + " " + state

	progress := fmt.Sprintf("tasks %d/%d sent, %d queued   cycle %d",
		m.dispatched, m.total, m.remaining, m.cycle)
	acks := fmt.Sprintf("awaiting  control:%d  home:%d",
		m.outstanding[task.KindControl], m.outstanding[task.KindHome])
	last := "last task  " + t.Highlight.Render(orDash(m.lastTask))

	keys := make([]string, 0, len(m.observed))
	for k := range m.observed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obs := make([]string, 0, len(keys))
	for _, k := range keys {
		obs = append(obs, fmt.Sprintf("%s=%v", k, m.observed[k]))
	}

	status := t.Border.Render(lipgloss.JoinVertical(lipgloss.Left,
		t.Header.Render("Status"),
		progress,
		acks,
		last,
		t.Dim.Render(orDash(strings.Join(obs, "  "))),
	))

	parts := []string{title, status}

	if m.prompting {
		p := m.prompt
		if p == "" {
			p = operator.Prompt()
		}
		if m.submitting {
			p += "\n" + t.Dim.Render("sending...")
		}
		parts = append(parts, t.Prompt.Render(p))
	}
	if m.finished {
		parts = append(parts, t.Header.Render("Result ")+m.summary)
	}

	log := t.Border.Render(lipgloss.JoinVertical(lipgloss.Left,
		append([]string{t.Header.Render("Events")}, m.eventLog...)...))
	parts = append(parts, log)

	if m.lastError != "" {
		parts = append(parts, t.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.help.View(m.keys))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
