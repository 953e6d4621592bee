package ui

import (
	"strings"
	"time"

	"github.com/bnema/wayidle/internal/ipc"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// WatchInterval is how often the watch view polls the daemon.
const WatchInterval = 500 * time.Millisecond

// StatusMsg carries a polled status, or the error polling it.
type StatusMsg struct {
	Status *ipc.StatusInfo
	Err    error
}

// PokedMsg reports the outcome of a poke sent from the watch view.
type PokedMsg struct {
	Err error
}

// pollMsg triggers the next status fetch.
type pollMsg struct{}

// WatchModel is a live view of the daemon status.
type WatchModel struct {
	fetch func() (*ipc.StatusInfo, error)
	poke  func() error

	status  *ipc.StatusInfo
	err     error
	message string
	spinner spinner.Model
	width   int
}

// NewWatchModel creates a watch view polling fetch. poke is sent on "p".
func NewWatchModel(fetch func() (*ipc.StatusInfo, error), poke func() error) *WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &WatchModel{
		fetch:   fetch,
		poke:    poke,
		spinner: s,
		width:   80,
	}
}

// Init starts the spinner and the first fetch
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchCmd())
}

// Update handles messages for the watch model
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "p":
			return m, m.pokeCmd()
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case StatusMsg:
		m.status = msg.Status
		m.err = msg.Err
		return m, tea.Tick(WatchInterval, func(time.Time) tea.Msg { return pollMsg{} })

	case pollMsg:
		return m, m.fetchCmd()

	case PokedMsg:
		if msg.Err != nil {
			m.message = FormatError("Poke failed: " + msg.Err.Error())
		} else {
			m.message = FormatSuccess("Poked")
		}
		return m, m.fetchCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
	}

	return m, nil
}

// View renders the watch model
func (m *WatchModel) View() string {
	var b strings.Builder

	switch {
	case m.err != nil:
		b.WriteString(m.spinner.View() + " " + ErrorStyle.Render(m.err.Error()))
		b.WriteString("\n")
		b.WriteString(FormatHint("retrying every %s", WatchInterval))
	case m.status == nil:
		b.WriteString(m.spinner.View() + " Connecting to wayidle...")
	default:
		b.WriteString(RenderStatusBody(m.status))
	}

	if m.message != "" {
		b.WriteString("\n\n" + m.message)
	}

	b.WriteString("\n\n")
	b.WriteString(SubtleStyle.Render(CreateSeparator(min(m.width, 60), "")))
	b.WriteString("\n")
	b.WriteString(FormatControl("p", "poke") + "   " + FormatControl("q", "quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *WatchModel) fetchCmd() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		status, err := fetch()
		return StatusMsg{Status: status, Err: err}
	}
}

func (m *WatchModel) pokeCmd() tea.Cmd {
	poke := m.poke
	return func() tea.Msg {
		return PokedMsg{Err: poke()}
	}
}
