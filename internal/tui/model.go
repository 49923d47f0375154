package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"imgpress/internal/events"
)

// Model renders live run progress from an event subscription. The program
// exits when the channel is closed.
type Model struct {
	events   <-chan events.Event
	onCancel func()
	started  time.Time

	bar   progress.Model
	width int

	status    string
	current   string
	total     uint64
	done      uint64
	canceling bool
	quitting  bool
}

type doneMsg struct{}

type eventMsg events.Event

var cancelKey = key.NewBinding(
	key.WithKeys("ctrl+c", "q", "esc"),
	key.WithHelp("q", "cancel run"),
)

// NewModel builds the progress view. onCancel is invoked once when the user
// asks to stop; the view keeps running until the run drains.
func NewModel(ch <-chan events.Event, onCancel func()) Model {
	bar := progress.New(
		progress.WithGradient(string(ColorAccentAlt), string(ColorSuccess)),
		progress.WithWidth(40),
	)
	return Model{
		events:   ch,
		onCancel: onCancel,
		started:  time.Now(),
		bar:      bar,
		status:   "Waiting for run...",
	}
}

func (m Model) Init() tea.Cmd {
	return listen(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(events.Event(msg))
		return m, listen(m.events)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if key.Matches(msg, cancelKey) && !m.canceling {
			m.canceling = true
			m.status = "Canceling, finishing current files..."
			if m.onCancel != nil {
				m.onCancel()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(60, max(20, msg.Width-10))
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) apply(e events.Event) {
	switch e.Kind {
	case events.KindStatus:
		m.status = e.Status
	case events.KindFile:
		m.current = e.File
	case events.KindProgress:
		m.total = e.Progress.Total
		if e.Progress.Done > m.done {
			m.done = e.Progress.Done
		}
		if e.Progress.CurrentFile != "" {
			m.current = e.Progress.CurrentFile
		}
		if !m.canceling {
			m.status = "Optimizing"
		}
	}
}

// Ratio is the completed fraction, clamped to [0, 1].
func (m Model) Ratio() float64 {
	if m.total == 0 {
		return 0
	}
	return min(1, float64(m.done)/float64(m.total))
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	elapsed := time.Since(m.started).Round(time.Millisecond)
	status := statusStyle.Render(m.status)
	if m.canceling {
		status = warnStyle.Render(m.status)
	}

	lines := []string{
		titleStyle.Render("imgpress"),
		status,
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.done, m.total)),
		dimStyle.Render("Current: " + filepath.Base(m.current)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		m.bar.ViewAs(m.Ratio()),
		dimStyle.Render(cancelKey.Help().Key + " " + cancelKey.Help().Desc),
	}
	return strings.Join(lines, "\n")
}

func listen(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return doneMsg{}
		}
		return eventMsg(e)
	}
}
