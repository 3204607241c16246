// Package tui renders a live view of a warehouse load.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/starload/starload/internal/engine"
	"github.com/starload/starload/internal/warehouse"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var phaseOrder = []string{
	warehouse.PhaseSchema,
	warehouse.PhaseDimensions,
	warehouse.PhaseKeys,
	warehouse.PhaseFacts,
	warehouse.PhaseStats,
}

// ProgressMsg carries a loader progress snapshot into the model.
type ProgressMsg warehouse.Progress

// DoneMsg reports that the load returned.
type DoneMsg struct {
	Result *engine.LoadResult
	Err    error
}

// LoadModel is the bubbletea model for a running load.
type LoadModel struct {
	spinner   spinner.Model
	bar       progress.Model
	progress  warehouse.Progress
	started   bool
	result    *engine.LoadResult
	err       error
	finished  bool
	cancelled bool
	abort     func()
	width     int
}

// NewLoadModel creates a load view. abort is called when the user cancels.
func NewLoadModel(abort func()) LoadModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = highlightStyle
	return LoadModel{
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
		abort:   abort,
		width:   100,
	}
}

func (m LoadModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m LoadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, msg.Width-20)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.finished {
				return m, tea.Quit
			}
			if !m.cancelled {
				m.cancelled = true
				if m.abort != nil {
					m.abort()
				}
			}
			return m, nil
		case "enter":
			if m.finished {
				return m, tea.Quit
			}
		}
		return m, nil

	case ProgressMsg:
		m.progress = warehouse.Progress(msg)
		m.started = true
		return m, nil

	case DoneMsg:
		m.finished = true
		m.result = msg.Result
		m.err = msg.Err
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m LoadModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Starload: Warehouse Load"))
	b.WriteString("\n\n")

	if !m.started && !m.finished {
		fmt.Fprintf(&b, "  %s Reading and cleaning dataset...\n", m.spinner.View())
		return b.String()
	}

	current := m.progress.Phase
	for _, phase := range phaseOrder {
		icon := dimStyle.Render("..")
		switch {
		case m.phaseDone(phase):
			icon = successStyle.Render("OK")
		case phase == current && m.err != nil:
			icon = errStyle.Render("XX")
		case phase == current:
			icon = m.spinner.View() + " "
		}
		fmt.Fprintf(&b, "  %s %s\n", icon, phase)
	}

	if m.progress.BatchesTotal > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "  %s\n", m.bar.ViewAs(m.progress.Percent()/100))
		fmt.Fprintf(&b, "  %d / %d batches, %d / %d facts\n",
			m.progress.BatchesDone, m.progress.BatchesTotal,
			m.progress.FactsInserted, m.progress.FactsTotal)
	}
	if m.progress.RowsDropped > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  %d rows dropped with unresolved keys", m.progress.RowsDropped)))
		b.WriteString("\n")
	}

	if len(m.progress.Errors) > 0 {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("  Errors:"))
		b.WriteString("\n")
		for _, e := range m.progress.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}

	b.WriteString("\n")
	switch {
	case m.finished && m.err != nil:
		b.WriteString(errStyle.Render("  Load failed: " + m.err.Error()))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Press enter to exit"))
	case m.finished:
		status := "succeeded"
		if m.result != nil && m.result.Report != nil {
			status = m.result.Report.Status
		}
		style := successStyle
		if status != "succeeded" {
			style = warnStyle
		}
		b.WriteString(style.Render("  Load " + status))
		b.WriteString("\n")
		if m.result != nil && m.result.JSONPath != "" {
			fmt.Fprintf(&b, "  Report: %s\n", m.result.JSONPath)
		}
		b.WriteString(dimStyle.Render("  Press enter to exit"))
	case m.cancelled:
		b.WriteString(warnStyle.Render("  Cancelling after the current batch..."))
	default:
		b.WriteString(dimStyle.Render("  q: cancel load"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m LoadModel) phaseDone(phase string) bool {
	if m.finished && m.err == nil {
		return true
	}
	for _, p := range phaseOrder {
		if p == m.progress.Phase {
			return false
		}
		if p == phase {
			return true
		}
	}
	return false
}

// Finished reports whether the load has returned.
func (m LoadModel) Finished() bool {
	return m.finished
}

// Cancelled reports whether the user asked to cancel.
func (m LoadModel) Cancelled() bool {
	return m.cancelled
}

// RunLoad runs e.Load behind the live view and returns its outcome once the
// user closes the view.
func RunLoad(ctx context.Context, e *engine.Engine) (*engine.LoadResult, error) {
	model := NewLoadModel(func() { _ = e.AbortLoad() })
	p := tea.NewProgram(model, tea.WithContext(ctx))

	go func() {
		res, err := e.Load(ctx, engine.LoadOptions{
			Progress: func(pr warehouse.Progress) { p.Send(ProgressMsg(pr)) },
		})
		p.Send(DoneMsg{Result: res, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running load view: %w", err)
	}
	fm := final.(LoadModel)
	if !fm.finished {
		return nil, context.Canceled
	}
	return fm.result, fm.err
}
