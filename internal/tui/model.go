// Package tui renders a live negotiation run in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/cascada/internal/orchestrator"
	"github.com/user/cascada/internal/playback"
	"github.com/user/cascada/internal/script"
	"github.com/user/cascada/internal/types"
)

const (
	minSpeed = 0.25
	maxSpeed = 16
	// visibleMessages is how many committed messages a panel shows.
	visibleMessages = 4
)

// Controller is the subset of the orchestrator the terminal view drives.
type Controller interface {
	Start(ctx context.Context) (types.RunID, error)
	Reset()
	SetSpeed(f float64) error
	Snapshot() orchestrator.Snapshot
}

type updateMsg playback.Update

type startedMsg struct {
	id  types.RunID
	err error
}

type resetMsg struct{}

// Model is the bubbletea model of the live view.
type Model struct {
	ctx     context.Context
	ctl     Controller
	snap    orchestrator.Snapshot
	spinner spinner.Model
	width   int
	err     error
	// busy is set while a start or reset command is in flight.
	busy bool
}

// New creates the model. Runs started from the view are bound to ctx.
func New(ctx context.Context, ctl Controller) Model {
	return Model{
		ctx:     ctx,
		ctl:     ctl,
		snap:    ctl.Snapshot(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case updateMsg:
		m.snap = m.ctl.Snapshot()
		return m, nil

	case startedMsg:
		m.busy = false
		m.err = msg.err
		m.snap = m.ctl.Snapshot()
		return m, nil

	case resetMsg:
		m.busy = false
		m.err = nil
		m.snap = m.ctl.Snapshot()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "s":
		if m.busy || m.snap.Running {
			return m, nil
		}
		m.busy = true
		ctx, ctl := m.ctx, m.ctl
		return m, func() tea.Msg {
			id, err := ctl.Start(ctx)
			return startedMsg{id: id, err: err}
		}

	case "r":
		if m.busy {
			return m, nil
		}
		m.busy = true
		ctl := m.ctl
		// Reset waits for every agent; agents block on the program while
		// it delivers their updates, so it must not run inside Update.
		return m, func() tea.Msg {
			ctl.Reset()
			return resetMsg{}
		}

	case "+", "=":
		return m.changeSpeed(2), nil

	case "-", "_":
		return m.changeSpeed(0.5), nil
	}
	return m, nil
}

func (m Model) changeSpeed(factor float64) Model {
	next := m.snap.Speed * factor
	if next < minSpeed || next > maxSpeed {
		return m
	}
	m.err = m.ctl.SetSpeed(next)
	m.snap = m.ctl.Snapshot()
	return m
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Cascada"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %s · speed %sx · %s", m.snap.Scenario, trimFloat(m.snap.Speed), m.stageLabel())))
	b.WriteString("\n\n")

	panels := make([]string, 0, len(m.snap.Threads))
	for _, th := range m.snap.VisibleThreads() {
		panels = append(panels, m.renderThread(th.ThreadSnapshot))
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, panels...))
	b.WriteString("\n")

	if m.snap.DealsSummaryVisible && len(m.snap.Deals) > 0 {
		deals := make([]string, len(m.snap.Deals))
		for i, d := range m.snap.Deals {
			deals[i] = fmt.Sprintf("%s %s%%", d.Counterparty, script.FormatPercent(d.Discount))
		}
		b.WriteString("Offers: " + strings.Join(deals, ", ") + "\n")
	}
	if m.snap.Summary != nil {
		b.WriteString(summaryStyle.Render(m.snap.Summary.Text()))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString(dimStyle.Render(m.help()))
	b.WriteString("\n")
	return b.String()
}

func (m Model) stageLabel() string {
	switch {
	case m.snap.StartedAt == nil:
		return "idle"
	case m.snap.Completed < len(m.snap.Threads):
		return fmt.Sprintf("%d/%d finished", m.snap.Completed, len(m.snap.Threads))
	default:
		return string(m.snap.Stage)
	}
}

func (m Model) help() string {
	if m.snap.Running {
		return "r reset · q quit"
	}
	return "s start · r reset · +/- speed · q quit"
}

func (m Model) renderThread(th playback.ThreadSnapshot) string {
	var lines []string
	header := fmt.Sprintf("%s  %s", lipgloss.NewStyle().Bold(true).Render(th.CounterpartyName), badge(th.Status, th.Failing))
	if th.Status == playback.StatusSucceeded && th.FinalDiscount > 0 {
		header += "  " + script.FormatPercent(th.FinalDiscount) + "% off"
	}
	lines = append(lines, header)

	msgs := th.Transcript
	if len(msgs) > visibleMessages {
		msgs = msgs[len(msgs)-visibleMessages:]
	}
	for _, msg := range msgs {
		lines = append(lines, renderLine(msg.Sender, msg.Content))
	}

	switch {
	case th.Typing != nil:
		lines = append(lines, renderLine(th.Typing.Sender, th.Typing.Text+" "+m.spinner.View()))
	case th.Status == playback.StatusConnecting:
		lines = append(lines, dimStyle.Render("connecting "+m.spinner.View()))
	}

	style := panelStyle.BorderForeground(statusColor(th.Status, th.Failing))
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(strings.Join(lines, "\n"))
}

func renderLine(sender playback.Sender, text string) string {
	if sender == playback.SenderInitiator {
		return initiatorStyle.Render(">") + " " + text
	}
	return counterpartyStyle.Render("<") + " " + text
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
