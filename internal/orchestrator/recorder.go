package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/user/cascada/internal/playback"
	"github.com/user/cascada/internal/types"
)

// Recorder journals run updates into the run and event stores and keeps the
// transcript of every finished thread. Typing updates are not recorded.
type Recorder struct {
	runs        types.RunStore
	events      types.EventStore
	transcripts types.TranscriptStore
	scenario    string
	source      *Orchestrator
}

// NewRecorder creates a Recorder. transcripts may be nil.
func NewRecorder(runs types.RunStore, events types.EventStore, transcripts types.TranscriptStore) *Recorder {
	return &Recorder{runs: runs, events: events, transcripts: transcripts}
}

// Attach registers the recorder on o.
func (r *Recorder) Attach(o *Orchestrator) {
	r.source = o
	r.scenario = o.Scenario().Name
	o.OnUpdate(r.Handle)
}

// Handle records one update.
func (r *Recorder) Handle(u playback.Update) {
	if u.Kind == playback.UpdateTyping {
		return
	}
	ctx := context.Background()

	switch u.Kind {
	case playback.UpdateRunStarted:
		idx := &types.RunIndex{
			RunID:     u.RunID,
			Scenario:  r.scenario,
			Status:    types.RunStatusRunning,
			Speed:     u.Speed,
			Seed:      u.Seed,
			StartedAt: u.At,
			UpdatedAt: u.At,
		}
		if err := r.runs.Create(ctx, idx); err != nil {
			slog.Warn("journal run create failed", "run_id", string(u.RunID), "error", err)
		}
	case playback.UpdateThreadComplete:
		r.saveTranscript(ctx, u)
	case playback.UpdateRunSettled:
		r.finish(ctx, u, types.RunStatusSettled)
	case playback.UpdateRunReset:
		r.finish(ctx, u, types.RunStatusReset)
	}

	payload, err := json.Marshal(u)
	if err != nil {
		slog.Warn("journal marshal failed", "run_id", string(u.RunID), "error", err)
		return
	}
	event := &types.Event{
		ID:       types.NewEventID(),
		RunID:    u.RunID,
		ThreadID: u.ThreadID,
		Type:     string(u.Kind),
		At:       u.At,
		Payload:  payload,
	}
	if err := r.events.Append(ctx, event); err != nil {
		slog.Warn("journal append failed", "run_id", string(u.RunID), "error", err)
	}
}

func (r *Recorder) finish(ctx context.Context, u playback.Update, status string) {
	idx, err := r.runs.Get(ctx, u.RunID)
	if err != nil {
		slog.Warn("journal run lookup failed", "run_id", string(u.RunID), "error", err)
		return
	}
	// A settled run that is later reset keeps its settled status.
	if idx.Status == types.RunStatusSettled {
		return
	}
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	idx.Status = status
	idx.UpdatedAt = at
	idx.EndedAt = &at
	if status == types.RunStatusSettled {
		idx.BestDiscount = u.Discount
		idx.Deals = u.Deals
	}
	if err := r.runs.Update(ctx, idx); err != nil {
		slog.Warn("journal run update failed", "run_id", string(u.RunID), "error", err)
	}
}

func (r *Recorder) saveTranscript(ctx context.Context, u playback.Update) {
	if r.transcripts == nil || r.source == nil {
		return
	}
	th, ok := r.source.Thread(u.RunID, u.ThreadID)
	if !ok {
		return
	}
	t := &types.Transcript{
		RunID:        u.RunID,
		ThreadID:     u.ThreadID,
		Counterparty: th.CounterpartyName,
		Status:       string(th.Status),
		Discount:     u.Discount,
		Messages:     make([]types.TranscriptMessage, len(th.Transcript)),
		CreatedAt:    u.At,
	}
	for i, m := range th.Transcript {
		t.Messages[i] = types.TranscriptMessage{Sender: string(m.Sender), Content: m.Content}
	}
	if err := r.transcripts.Put(ctx, t); err != nil {
		slog.Warn("journal transcript failed", "run_id", string(u.RunID), "thread_id", string(u.ThreadID), "error", err)
	}
}
