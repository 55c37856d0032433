// Package orchestrator runs a set of negotiation agents concurrently,
// collects their outcomes and applies the staged reveal once every thread
// is terminal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/user/cascada/internal/playback"
	"github.com/user/cascada/internal/scenario"
	"github.com/user/cascada/internal/script"
	"github.com/user/cascada/internal/types"
)

var (
	// ErrRunInProgress is returned by Start and SetSpeed while a run is
	// active. A finished run stays active until Reset.
	ErrRunInProgress = errors.New("run in progress")
	ErrInvalidSpeed  = errors.New("speed must be a positive finite number")
	ErrNotStarted    = errors.New("run not started")
	// ErrRunReset is returned by Wait when the awaited run was reset.
	ErrRunReset = errors.New("run was reset")
	// ErrRunCancelled is returned by Wait when the context the run was
	// started with is cancelled before the run settles.
	ErrRunCancelled = errors.New("run context cancelled")
)

// testHookWaiting is called by Wait once it holds the session it waits on.
var testHookWaiting = func() {}

const (
	startStaggerMs = 400
	hideFailedMs   = 2000
	showSummaryMs  = 3000
)

// Options configures an Orchestrator.
type Options struct {
	Scenario *scenario.Scenario
	Speed    float64
	// Seed makes runs reproducible; zero seeds every run from the clock.
	Seed int64
	// MaxConcurrent limits how many agents negotiate at once; zero means
	// no limit.
	MaxConcurrent int
	Clock         playback.Clock
}

// Orchestrator owns the current run session.
type Orchestrator struct {
	opts Options

	// ctl serializes Start, Reset and Restart.
	ctl sync.Mutex

	mu      sync.Mutex
	speed   float64
	session *session

	lmu       sync.RWMutex
	listeners []playback.Listener
	onSummary []func(Summary)
}

// New creates an orchestrator with an idle session built from opts.Scenario.
func New(opts Options) (*Orchestrator, error) {
	if opts.Scenario == nil {
		opts.Scenario = scenario.Default()
	}
	if err := opts.Scenario.Validate(); err != nil {
		return nil, err
	}
	if opts.Speed == 0 {
		opts.Speed = 1
	}
	if !playback.ValidSpeed(opts.Speed) {
		return nil, ErrInvalidSpeed
	}
	if opts.Clock == nil {
		opts.Clock = playback.RealClock{}
	}
	o := &Orchestrator{opts: opts, speed: opts.Speed}
	o.session = newSession(opts.Scenario, o.speed)
	return o, nil
}

// OnUpdate registers a listener for every progress update. Listeners run
// on agent goroutines and must not call Reset or Restart.
func (o *Orchestrator) OnUpdate(fn playback.Listener) {
	o.lmu.Lock()
	o.listeners = append(o.listeners, fn)
	o.lmu.Unlock()
}

// OnSummary registers a callback invoked once per run when the summary
// becomes visible.
func (o *Orchestrator) OnSummary(fn func(Summary)) {
	o.lmu.Lock()
	o.onSummary = append(o.onSummary, fn)
	o.lmu.Unlock()
}

func (o *Orchestrator) emit(u playback.Update) {
	if u.At.IsZero() {
		u.At = time.Now()
	}
	o.lmu.RLock()
	listeners := o.listeners
	o.lmu.RUnlock()
	for _, fn := range listeners {
		fn(u)
	}
}

// Scenario returns the scenario runs are built from.
func (o *Orchestrator) Scenario() *scenario.Scenario {
	return o.opts.Scenario
}

// Speed returns the speed factor the next run will use.
func (o *Orchestrator) Speed() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speed
}

// SetSpeed changes the speed factor. It is rejected while a run is active.
func (o *Orchestrator) SetSpeed(f float64) error {
	if !playback.ValidSpeed(f) {
		return ErrInvalidSpeed
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.running {
		return ErrRunInProgress
	}
	o.speed = f
	o.session.speed = f
	return nil
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.running
}

// Snapshot returns a copy of the current session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.snapshot()
}

// Thread returns a snapshot of one thread of the given run. It reports false
// once that run has been replaced.
func (o *Orchestrator) Thread(runID types.RunID, id types.ThreadID) (playback.ThreadSnapshot, bool) {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()
	if s.id != runID {
		return playback.ThreadSnapshot{}, false
	}
	th := s.thread(id)
	if th == nil {
		return playback.ThreadSnapshot{}, false
	}
	return th.Snapshot(), true
}

// Summary returns the run summary once the reveal reached SummaryVisible.
func (o *Orchestrator) Summary() (Summary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s.stage != StageSummaryVisible {
		return Summary{}, false
	}
	return newSummary(s.id, s.scenario, s.deals), true
}

// Start launches every agent of a fresh session. The run lives until Reset.
// Cancelling ctx stops the agents and ends the run, after which Start may be
// called again.
func (o *Orchestrator) Start(ctx context.Context) (types.RunID, error) {
	o.ctl.Lock()
	defer o.ctl.Unlock()
	return o.start(ctx)
}

func (o *Orchestrator) start(ctx context.Context) (types.RunID, error) {
	o.mu.Lock()
	if o.session.running {
		o.mu.Unlock()
		return "", ErrRunInProgress
	}
	s := o.session
	if s.started {
		s = newSession(o.opts.Scenario, o.speed)
		o.session = s
	}
	s.seed = o.opts.Seed
	if s.seed == 0 {
		s.seed = time.Now().UnixNano()
	}
	s.started = true
	s.running = true
	s.startedAt = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	s.ctx, s.cancel, s.group = runCtx, cancel, group
	o.mu.Unlock()

	log := slog.With("run_id", string(s.id))
	log.Info("run started", "scenario", s.scenario.Name, "threads", len(s.threads), "speed", s.speed, "seed", s.seed)
	o.emit(playback.Update{Kind: playback.UpdateRunStarted, RunID: s.id, Speed: s.speed, Seed: s.seed})

	var slots *semaphore.Weighted
	if o.opts.MaxConcurrent > 0 {
		slots = semaphore.NewWeighted(int64(o.opts.MaxConcurrent))
	}

	for i, th := range s.threads {
		agent := playback.NewAgent(playback.AgentConfig{
			RunID:        s.id,
			Thread:       th,
			Script:       script.NewContext(s.scenario, th.Definition()),
			Clock:        o.opts.Clock,
			Rand:         rand.New(rand.NewSource(s.seed + int64(i)*17 + 99)),
			Speed:        s.speed,
			StartDelayMs: float64(i * startStaggerMs),
			Slots:        slots,
			Listener:     o.emit,
			Report: func(r playback.Result) {
				o.onThreadComplete(s.id, r)
			},
		})
		group.Go(func() error {
			err := agent.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("thread %s: %w", th.ID(), err)
			}
			return nil
		})
	}

	o.mu.Lock()
	s.stopWatch = context.AfterFunc(ctx, func() { o.abandon(s) })
	o.mu.Unlock()
	return s.id, nil
}

// abandon ends a run whose parent context was cancelled without a Reset.
// The session is kept for inspection but no longer counts as running.
func (o *Orchestrator) abandon(s *session) {
	if err := s.group.Wait(); err != nil {
		slog.Error("agent exited with error", "run_id", string(s.id), "error", err)
	}
	s.reveal.Wait()

	o.mu.Lock()
	if s.cancelled {
		o.mu.Unlock()
		return
	}
	s.cancelled = true
	s.running = false
	s.abandoned = true
	settled := s.closed
	o.mu.Unlock()

	if !settled {
		slog.Info("run cancelled", "run_id", string(s.id))
		o.emit(playback.Update{Kind: playback.UpdateRunReset, RunID: s.id})
	}

	o.mu.Lock()
	s.settle(ErrRunCancelled)
	o.mu.Unlock()
}

// onThreadComplete records a terminal outcome. Reports from a cancelled or
// replaced run and repeated reports for a thread are ignored.
func (o *Orchestrator) onThreadComplete(runID types.RunID, r playback.Result) {
	o.mu.Lock()
	s := o.session
	if s.id != runID || s.cancelled || !s.running || s.completed[r.ThreadID] {
		o.mu.Unlock()
		return
	}
	th := s.thread(r.ThreadID)
	if th == nil {
		o.mu.Unlock()
		return
	}
	s.completed[r.ThreadID] = true
	if r.Success {
		if !s.addDeal(types.Deal{Counterparty: th.Definition().CounterpartyName, Discount: r.Discount}) {
			slog.Warn("duplicate counterparty deal ignored", "run_id", string(runID), "counterparty", th.Definition().CounterpartyName)
		}
	}

	var settled, reveal bool
	if s.allComplete() {
		switch {
		case len(s.deals) == 0:
			settled = true
		case !s.revealing:
			s.revealing = true
			s.reveal.Add(1)
			reveal = true
		}
	}
	completed, total := len(s.completed), len(s.threads)
	o.mu.Unlock()

	o.emit(playback.Update{
		Kind:     playback.UpdateThreadComplete,
		RunID:    runID,
		ThreadID: r.ThreadID,
		Success:  r.Success,
		Discount: r.Discount,
	})
	slog.Info("thread complete", "run_id", string(runID), "thread_id", string(r.ThreadID),
		"success", r.Success, "completed", completed, "total", total)
	if settled {
		slog.Info("run settled without deals", "run_id", string(runID))
		o.emit(playback.Update{Kind: playback.UpdateRunSettled, RunID: runID, Stage: string(StageAwaitingAll)})
		o.mu.Lock()
		s.settle(nil)
		o.mu.Unlock()
	}
	if reveal {
		go o.runReveal(s)
	}
}

// runReveal hides failed threads and then shows the summary, each step
// after a speed-scaled pause.
func (o *Orchestrator) runReveal(s *session) {
	defer s.reveal.Done()

	if err := o.opts.Clock.Sleep(s.ctx, playback.Scale(hideFailedMs, s.speed)); err != nil {
		return
	}
	if !o.advance(s, StageFailedHidden) {
		return
	}

	if err := o.opts.Clock.Sleep(s.ctx, playback.Scale(showSummaryMs, s.speed)); err != nil {
		return
	}
	if !o.advance(s, StageSummaryVisible) {
		return
	}

	o.mu.Lock()
	sum := newSummary(s.id, s.scenario, s.deals)
	o.mu.Unlock()

	slog.Info("run settled", "run_id", string(s.id), "best_discount", sum.BestDiscount, "deals", len(sum.Deals))
	o.emit(playback.Update{
		Kind:     playback.UpdateRunSettled,
		RunID:    s.id,
		Stage:    string(StageSummaryVisible),
		Discount: sum.BestDiscount,
		Deals:    sum.Deals,
	})

	o.lmu.RLock()
	hooks := o.onSummary
	o.lmu.RUnlock()
	for _, fn := range hooks {
		fn(sum)
	}

	o.mu.Lock()
	s.settle(nil)
	o.mu.Unlock()
}

func (o *Orchestrator) advance(s *session, to Stage) bool {
	o.mu.Lock()
	if s.cancelled || o.session != s || !s.advance(to) {
		o.mu.Unlock()
		return false
	}
	o.mu.Unlock()

	slog.Info("reveal", "run_id", string(s.id), "stage", string(to))
	o.emit(playback.Update{Kind: playback.UpdateReveal, RunID: s.id, Stage: string(to)})
	return true
}

// Reset cancels the active run, waits for every agent and reveal step to
// exit and replaces the session with a fresh idle one.
func (o *Orchestrator) Reset() {
	o.ctl.Lock()
	defer o.ctl.Unlock()
	o.reset()
}

func (o *Orchestrator) reset() {
	o.mu.Lock()
	s := o.session
	abandoned := s.abandoned
	s.cancelled = true
	s.running = false
	stopWatch := s.stopWatch
	o.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	if s.cancel != nil {
		s.cancel()
		if err := s.group.Wait(); err != nil {
			slog.Error("agent exited with error", "run_id", string(s.id), "error", err)
		}
		s.reveal.Wait()
	}

	o.mu.Lock()
	s.settle(ErrRunReset)
	o.session = newSession(o.opts.Scenario, o.speed)
	o.mu.Unlock()

	if s.started && !abandoned {
		slog.Info("run reset", "run_id", string(s.id))
		o.emit(playback.Update{Kind: playback.UpdateRunReset, RunID: s.id})
	}
}

// Restart resets the current run and starts a new one.
func (o *Orchestrator) Restart(ctx context.Context) (types.RunID, error) {
	o.ctl.Lock()
	defer o.ctl.Unlock()
	o.reset()
	return o.start(ctx)
}

// Wait blocks until the current run settles: all threads are terminal, the
// reveal, if any, has finished and every listener and summary callback has
// seen the final update. It returns ErrRunReset if the run is reset first
// and ErrRunCancelled if its start context is cancelled first.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	s := o.session
	started := s.started
	o.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	testHookWaiting()

	select {
	case <-s.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return s.result
}

// Stop cancels the active run and waits for its goroutines to exit.
func (o *Orchestrator) Stop() {
	o.Reset()
}
