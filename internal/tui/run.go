package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/cascada/internal/orchestrator"
	"github.com/user/cascada/internal/playback"
	"github.com/user/cascada/internal/script"
	"github.com/user/cascada/internal/types"
)

// Run shows the live view until the user quits or ctx is cancelled. The
// active run is reset on exit.
func Run(ctx context.Context, o *orchestrator.Orchestrator) error {
	p := tea.NewProgram(New(ctx, o), tea.WithContext(ctx), tea.WithAltScreen())
	o.OnUpdate(func(u playback.Update) {
		p.Send(updateMsg(u))
	})

	_, err := p.Run()
	o.Reset()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Plain prints committed messages, thread outcomes and the summary as
// plain lines, for terminals without cursor control.
type Plain struct {
	w     io.Writer
	names map[types.ThreadID]string

	mu sync.Mutex
}

// NewPlain creates a Plain printer for the threads of snap.
func NewPlain(w io.Writer, snap orchestrator.Snapshot) *Plain {
	names := make(map[types.ThreadID]string, len(snap.Threads))
	for _, th := range snap.Threads {
		names[th.ID] = th.CounterpartyName
	}
	return &Plain{w: w, names: names}
}

// Handle prints one update. Typing and status updates are skipped.
func (p *Plain) Handle(u playback.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := p.names[u.ThreadID]
	switch u.Kind {
	case playback.UpdateRunStarted:
		fmt.Fprintf(p.w, "Run %s started at speed %sx\n", u.RunID, trimFloat(u.Speed))
	case playback.UpdateMessage:
		arrow := "<"
		if u.Sender == playback.SenderInitiator {
			arrow = ">"
		}
		fmt.Fprintf(p.w, "[%s] %s %s\n", name, arrow, u.Text)
	case playback.UpdateFailing:
		fmt.Fprintf(p.w, "[%s] talks are stalling\n", name)
	case playback.UpdateThreadComplete:
		if u.Success {
			fmt.Fprintf(p.w, "[%s] deal at %s%%\n", name, script.FormatPercent(u.Discount))
		} else {
			fmt.Fprintf(p.w, "[%s] no deal\n", name)
		}
	case playback.UpdateReveal:
		if u.Stage == string(orchestrator.StageFailedHidden) {
			fmt.Fprintln(p.w, "Failed negotiations hidden.")
		}
	case playback.UpdateRunSettled:
		if u.Stage == string(orchestrator.StageAwaitingAll) {
			fmt.Fprintln(p.w, "No retailer agreed to a discount.")
		}
	case playback.UpdateRunReset:
		fmt.Fprintf(p.w, "Run %s reset\n", u.RunID)
	}
}

// Summary prints the run summary.
func (p *Plain) Summary(s orchestrator.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s.Text())
}
