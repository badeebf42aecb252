// Package ui implements the interactive update list. The model polls the
// session orchestrator once per frame and never blocks on background work.
package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modupdater/internal/logging"
	"modupdater/internal/session"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

var log = logging.L("ui")

// Config configures the UI application.
type Config struct {
	Orchestrator *session.Orchestrator
	Version      string
	// TickInterval overrides FrameInterval; mostly useful in tests.
	TickInterval time.Duration
	// Clipboard replaces the system clipboard writer.
	Clipboard func(string) error
	Context   context.Context
}

// App implements the Bubble Tea model for the update list.
type App struct {
	ctx  context.Context
	orch *session.Orchestrator

	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model

	task       *session.Task
	refreshing bool
	outcome    session.Outcome
	entries    []*session.Entry
	cursor     int

	width        int
	height       int
	version      string
	tickInterval time.Duration
	writeClip    func(string) error
	now          func() time.Time

	toast      string
	toastError bool
	toastUntil time.Time
	lastError  string
	showHelp   bool

	// quitPending is set by ctrl+c during an update; the model quits once
	// the task has finished.
	quitPending      bool
	restartRequested bool
}

// NewApp creates the model. Init starts the first refresh.
func NewApp(cfg Config) (*App, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("ui: orchestrator is required")
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	writeClip := cfg.Clipboard
	if writeClip == nil {
		writeClip = clipboard.WriteAll
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleSpinner

	return &App{
		ctx:     ctx,
		orch:    cfg.Orchestrator,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: s,
		progress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(20),
			progress.WithoutPercentage(),
		),
		version:      cfg.Version,
		tickInterval: cfg.TickInterval,
		writeClip:    writeClip,
		now:          time.Now,
	}, nil
}

// RestartRequested reports whether the user left the list after an archive was replaced.
func (m *App) RestartRequested() bool {
	return m.restartRequested
}

// Init implements tea.Model.
func (m *App) Init() tea.Cmd {
	m.startRefresh()
	return tea.Batch(m.spinner.Tick, scheduleTick(m.tickInterval))
}

// Update implements tea.Model.
func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tickMsg:
		m.poll()
		if m.quitPending && !m.busy() {
			return m, tea.Quit
		}
		return m, scheduleTick(m.tickInterval)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *App) busy() bool {
	return m.task != nil
}

// poll collects the result of a finished task. It is called once per frame.
func (m *App) poll() {
	if m.toast != "" && m.now().After(m.toastUntil) {
		m.toast = ""
	}
	if m.task == nil || !m.task.IsDone() {
		return
	}
	err := m.task.Err()
	wasRefresh := m.refreshing
	m.task = nil
	m.refreshing = false

	if wasRefresh {
		m.outcome, m.entries = m.orch.Result()
		m.cursor = m.firstTriggerable()
		m.lastError = ""
		if err != nil {
			m.lastError = err.Error()
		}
		log.WithField("outcome", m.outcome.String()).WithField("count", len(m.entries)).Debug("rendering updates")
		return
	}

	if err != nil {
		m.showToast(fmt.Sprintf("Update failed: %v", err), true)
		return
	}
	// Move off the finished row, or stay on the last one.
	if m.cursor+1 < len(m.entries) {
		m.cursor++
	}
}

func (m *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		// A refresh writes nothing and may be abandoned. An install may not.
		if m.busy() && !m.refreshing {
			m.quitPending = true
			return m, nil
		}
		return m, tea.Quit
	}
	// The list is not interactive while a task runs.
	if m.busy() {
		return m, nil
	}
	if m.showHelp {
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Back) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor+1 < len(m.entries) {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Home):
		m.cursor = 0
	case key.Matches(msg, m.keys.End):
		if len(m.entries) > 0 {
			m.cursor = len(m.entries) - 1
		}
	case key.Matches(msg, m.keys.Enter):
		m.startUpdate()
	case key.Matches(msg, m.keys.Copy):
		m.copyURL()
	case key.Matches(msg, m.keys.Refresh):
		m.startRefresh()
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.Back):
		m.restartRequested = m.orch.RestartRequired()
		return m, tea.Quit
	}
	return m, nil
}

func (m *App) startRefresh() {
	task, err := m.orch.Refresh(m.ctx)
	if err != nil {
		m.showToast(err.Error(), true)
		return
	}
	m.task = task
	m.refreshing = true
	m.outcome = session.OutcomePending
	m.entries = nil
	m.cursor = 0
}

func (m *App) startUpdate() {
	entry := m.selected()
	if entry == nil {
		return
	}
	if !entry.Candidate().SingleHash() {
		m.showToast(fmt.Sprintf("%s has several downloads; press c to copy its URL", entry.Name()), false)
		return
	}
	if !entry.Triggerable() {
		return
	}
	task, err := m.orch.StartUpdate(m.ctx, entry.Name())
	if err != nil {
		m.showToast(err.Error(), true)
		return
	}
	m.task = task
}

func (m *App) copyURL() {
	entry := m.selected()
	if entry == nil {
		return
	}
	url := entry.Candidate().Metadata.URL
	if err := m.writeClip(url); err != nil {
		log.WithError(err).Warn("clipboard write failed")
		m.showToast("Could not copy to clipboard", true)
		return
	}
	m.showToast("Copied "+url, false)
}

func (m *App) showToast(text string, isError bool) {
	m.toast = text
	m.toastError = isError
	m.toastUntil = m.now().Add(toastDuration)
}

func (m *App) selected() *session.Entry {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return nil
	}
	return m.entries[m.cursor]
}

func (m *App) firstTriggerable() int {
	for i, e := range m.entries {
		if e.Triggerable() {
			return i
		}
	}
	return 0
}
