package ui

import (
	"context"
	"fmt"

	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"bookctl/internal/model"
	"bookctl/internal/progress"
)

// maxLogLines is how many log lines the screen keeps.
const maxLogLines = 200

// Controller is the subset of the lifecycle controller the TUI drives.
type Controller interface {
	View() progress.View
	Resume(ctx context.Context, phase int) error
	Reset()
}

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	ctrl Controller
	rep  *Reporter

	view  progress.View
	logs  []model.LogEntry
	phase int // resume phase override, 0 = suggested

	resuming bool
	cleared  bool
	status   string

	spinner spinner.Model
	bar     bubblesprogress.Model

	// UI
	width, height int
	styles        Styles
}

func NewModel(ctx context.Context, ctrl Controller, rep *Reporter) Model {
	c, cancel := context.WithCancel(ctx)
	sty := defaultStyles()

	sp := spinner.New()
	sp.Style = sty.Spinner

	v := ctrl.View()
	logs := v.Logs
	if len(logs) > maxLogLines {
		logs = logs[len(logs)-maxLogLines:]
	}
	return Model{
		ctx:     c,
		cancel:  cancel,
		ctrl:    ctrl,
		rep:     rep,
		view:    v,
		logs:    logs,
		spinner: sp,
		bar:     bubblesprogress.New(bubblesprogress.WithDefaultGradient(), bubblesprogress.WithWidth(40)),
		styles:  sty,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenEventsCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if w := msg.Width - 12; w > 10 && w < 80 {
			m.bar.Width = w
		}
		return m, nil

	case viewMsg:
		m.view = msg.V
		if m.view.Stage != model.StageFailed {
			m.phase = 0
		}
		if m.finished() {
			return m, tea.Quit
		}
		return m, m.listenEventsCmd()

	case logMsg:
		m.logs = append(m.logs, msg.E)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		return m, m.listenEventsCmd()

	case resumeDoneMsg:
		m.resuming = false
		if msg.Err != nil {
			m.status = fmt.Sprintf("resume from phase %d failed: %v", msg.Phase, msg.Err)
		} else {
			m.status = fmt.Sprintf("resumed from phase %d", msg.Phase)
			m.phase = 0
		}
		return m, nil

	case resetDoneMsg:
		m.cleared = true
		m.cancel()
		return m, tea.Quit

	case quitMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.cancel()
		return m, tea.Quit
	case "r":
		if !m.view.Resumable() || m.resuming {
			return m, nil
		}
		m.resuming = true
		m.status = ""
		return m, m.resumeCmd(m.resumePhase())
	case "1", "2", "3", "4":
		if m.view.Resumable() {
			m.phase = int(key[0] - '0')
		}
		return m, nil
	case "x":
		if m.view.JobID == "" {
			return m, nil
		}
		return m, m.resetCmd()
	}
	return m, nil
}

// finished reports whether there is nothing left to watch or act on.
func (m Model) finished() bool {
	switch m.view.Stage {
	case model.StageDone:
		return true
	case model.StageFailed:
		return !m.view.Resumable()
	}
	return false
}

func (m Model) resumePhase() int {
	if m.phase > 0 {
		return m.phase
	}
	return m.view.Error.SuggestedPhase()
}

func (m Model) listenEventsCmd() tea.Cmd {
	return func() tea.Msg {
		return m.rep.next(m.ctx.Done())
	}
}

func (m Model) resumeCmd(phase int) tea.Cmd {
	return func() tea.Msg {
		return resumeDoneMsg{Phase: phase, Err: m.ctrl.Resume(m.ctx, phase)}
	}
}

func (m Model) resetCmd() tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Reset()
		return resetDoneMsg{}
	}
}
