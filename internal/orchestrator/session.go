package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/cascada/internal/playback"
	"github.com/user/cascada/internal/scenario"
	"github.com/user/cascada/internal/types"
)

// Stage is the post-completion reveal stage of a run.
type Stage string

const (
	StageAwaitingAll    Stage = "awaiting_all"
	StageFailedHidden   Stage = "failed_hidden"
	StageSummaryVisible Stage = "summary_visible"
)

func (s Stage) rank() int {
	switch s {
	case StageFailedHidden:
		return 1
	case StageSummaryVisible:
		return 2
	default:
		return 0
	}
}

// session is the state of one run. Aggregates are guarded by the
// orchestrator's mutex.
type session struct {
	id        types.RunID
	scenario  *scenario.Scenario
	threads   []*playback.Thread
	speed     float64
	seed      int64
	startedAt time.Time

	started   bool
	running   bool
	cancelled bool
	completed map[types.ThreadID]bool
	deals     []types.Deal
	stage     Stage
	revealing bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	reveal sync.WaitGroup

	stopWatch func() bool
	abandoned bool

	settled chan struct{}
	closed  bool
	// result is what Wait reports once settled is closed.
	result  error
}

func newSession(scn *scenario.Scenario, speed float64) *session {
	threads := make([]*playback.Thread, len(scn.Threads))
	for i, def := range scn.Threads {
		threads[i] = playback.NewThread(def)
	}
	return &session{
		id:        types.NewRunID(),
		scenario:  scn,
		threads:   threads,
		speed:     speed,
		completed: make(map[types.ThreadID]bool),
		stage:     StageAwaitingAll,
		settled:   make(chan struct{}),
	}
}

func (s *session) thread(id types.ThreadID) *playback.Thread {
	for _, th := range s.threads {
		if th.ID() == id {
			return th
		}
	}
	return nil
}

// addDeal merges a deal, keeping the first entry per counterparty name.
func (s *session) addDeal(d types.Deal) bool {
	for _, existing := range s.deals {
		if existing.Counterparty == d.Counterparty {
			return false
		}
	}
	s.deals = append(s.deals, d)
	return true
}

func (s *session) allComplete() bool {
	return len(s.completed) == len(s.threads)
}

// advance moves the reveal stage forward; it never regresses.
func (s *session) advance(to Stage) bool {
	if to.rank() <= s.stage.rank() {
		return false
	}
	if to == StageSummaryVisible && s.stage != StageFailedHidden {
		return false
	}
	s.stage = to
	return true
}

// settle records the outcome of the run once; later calls are ignored.
func (s *session) settle(result error) {
	if s.closed {
		return
	}
	s.closed = true
	s.result = result
	close(s.settled)
}

// ThreadView is a thread snapshot plus its visibility at the current stage.
type ThreadView struct {
	playback.ThreadSnapshot
	Hidden bool `json:"hidden,omitempty"`
}

// Snapshot is a point-in-time copy of the run for rendering layers.
type Snapshot struct {
	RunID               types.RunID  `json:"run_id"`
	Scenario            string       `json:"scenario"`
	Running             bool         `json:"running"`
	Stage               Stage        `json:"stage"`
	Speed               float64      `json:"speed"`
	Seed                int64        `json:"seed,omitempty"`
	StartedAt           *time.Time   `json:"started_at,omitempty"`
	Completed           int          `json:"completed"`
	Threads             []ThreadView `json:"threads"`
	Deals               []types.Deal `json:"deals"`
	DealsSummaryVisible bool         `json:"deals_summary_visible"`
	Summary             *Summary     `json:"summary,omitempty"`
}

// VisibleThreads returns the threads still shown at the current stage.
func (s Snapshot) VisibleThreads() []ThreadView {
	out := make([]ThreadView, 0, len(s.Threads))
	for _, th := range s.Threads {
		if !th.Hidden {
			out = append(out, th)
		}
	}
	return out
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		RunID:               s.id,
		Scenario:            s.scenario.Name,
		Running:             s.running,
		Stage:               s.stage,
		Speed:               s.speed,
		Seed:                s.seed,
		Completed:           len(s.completed),
		Threads:             make([]ThreadView, len(s.threads)),
		Deals:               append([]types.Deal{}, s.deals...),
		DealsSummaryVisible: s.stage.rank() >= StageFailedHidden.rank(),
	}
	if s.started {
		t := s.startedAt
		snap.StartedAt = &t
	}
	for i, th := range s.threads {
		ts := th.Snapshot()
		snap.Threads[i] = ThreadView{
			ThreadSnapshot: ts,
			Hidden:         snap.DealsSummaryVisible && ts.Status == playback.StatusFailed,
		}
	}
	if s.stage == StageSummaryVisible {
		sum := newSummary(s.id, s.scenario, s.deals)
		snap.Summary = &sum
	}
	return snap
}
