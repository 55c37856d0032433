package playback

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/cascada/internal/scenario"
	"github.com/user/cascada/internal/script"
	"github.com/user/cascada/internal/types"
)

// ErrNotIdle is returned by Agent.Run when the agent has already been run.
var ErrNotIdle = errors.New("agent is not idle")

const (
	connectMs        = 1200
	afterInitiatorMs = 800
	afterReplyMs     = 600
	roundJitterMs    = 400
	beforeResolveMs  = 800
	failingFlashMs   = 800
)

// Result is the terminal outcome an agent reports.
type Result struct {
	ThreadID types.ThreadID
	Success  bool
	Discount float64
}

// AgentConfig wires an Agent.
type AgentConfig struct {
	RunID  types.RunID
	Thread *Thread
	Script script.Context
	Clock  Clock
	// Rand drives round count, reply variants and jitter. It is owned by
	// the agent.
	Rand  *rand.Rand
	Speed float64
	// StartDelayMs staggers agents; it is scaled by Speed like every other
	// modeled delay.
	StartDelayMs float64
	// Slots, when set, limits how many agents negotiate at once.
	Slots    *semaphore.Weighted
	Listener Listener
	Report   func(Result)
}

// Agent drives one thread: Idle → Connecting → Negotiating → Succeeded|Failed.
type Agent struct {
	cfg      AgentConfig
	seq      *Sequencer
	rounds   int
	started  atomic.Bool
	reported atomic.Bool
}

// NewAgent creates an agent and resolves the thread's round count.
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if !ValidSpeed(cfg.Speed) {
		cfg.Speed = 1
	}
	a := &Agent{cfg: cfg}
	a.rounds = script.Rounds(cfg.Rand, cfg.Script.Outcome)
	cfg.Thread.setRounds(a.rounds)
	a.seq = NewSequencer(cfg.Thread, cfg.Clock, cfg.Rand, cfg.Speed, a.notify)
	return a
}

// Rounds returns the resolved round count.
func (a *Agent) Rounds() int {
	return a.rounds
}

func (a *Agent) notify(u Update) {
	if a.cfg.Listener == nil {
		return
	}
	u.RunID = a.cfg.RunID
	if u.ThreadID == "" {
		u.ThreadID = a.cfg.Thread.ID()
	}
	if u.At.IsZero() {
		u.At = time.Now()
	}
	a.cfg.Listener(u)
}

func (a *Agent) wait(ctx context.Context, ms float64) error {
	return a.cfg.Clock.Sleep(ctx, Scale(ms, a.cfg.Speed))
}

func (a *Agent) jitter(base float64) float64 {
	return base + a.cfg.Rand.Float64()*roundJitterMs
}

func (a *Agent) transition(s Status) {
	a.cfg.Thread.setStatus(s)
	a.notify(Update{Kind: UpdateStatus, Status: s})
}

// Run plays the thread to a terminal status and reports the result exactly
// once. When ctx is cancelled it stops at the next suspend point, reports
// nothing and returns ctx.Err().
func (a *Agent) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrNotIdle
	}
	th := a.cfg.Thread
	log := slog.With("run_id", string(a.cfg.RunID), "thread_id", string(th.ID()))

	if err := a.wait(ctx, a.cfg.StartDelayMs); err != nil {
		return err
	}
	if a.cfg.Slots != nil {
		if err := a.cfg.Slots.Acquire(ctx, 1); err != nil {
			return err
		}
		defer a.cfg.Slots.Release(1)
	}

	a.transition(StatusConnecting)
	if err := a.wait(ctx, connectMs); err != nil {
		return err
	}
	a.transition(StatusNegotiating)
	log.Debug("negotiating", "rounds", a.rounds)

	for round := 0; round < a.rounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !a.seq.Type(ctx, script.InitiatorMessage(round, a.cfg.Script), SenderInitiator) {
			return ctx.Err()
		}
		if err := a.wait(ctx, a.jitter(afterInitiatorMs)); err != nil {
			return err
		}

		reply := script.Reply(a.cfg.Rand, round, a.rounds, a.cfg.Script)
		if !a.seq.Type(ctx, reply, SenderCounterparty) {
			return ctx.Err()
		}
		if err := a.wait(ctx, a.jitter(afterReplyMs)); err != nil {
			return err
		}
	}

	if err := a.wait(ctx, beforeResolveMs); err != nil {
		return err
	}

	success := a.cfg.Script.Outcome == scenario.OutcomeWillSucceed
	if success {
		a.transition(StatusSucceeded)
	} else {
		th.setFailing(true)
		a.notify(Update{Kind: UpdateFailing, Failing: true})
		if err := a.wait(ctx, failingFlashMs); err != nil {
			return err
		}
		th.setFailing(false)
		a.transition(StatusFailed)
	}

	a.report(Result{ThreadID: th.ID(), Success: success, Discount: a.discount(success)})
	log.Info("thread finished", "success", success, "messages", len(th.Transcript()))
	return nil
}

func (a *Agent) discount(success bool) float64 {
	if !success {
		return 0
	}
	return a.cfg.Script.Discount
}

// report fires the completion callback at most once.
func (a *Agent) report(r Result) {
	if !a.reported.CompareAndSwap(false, true) {
		return
	}
	if a.cfg.Report != nil {
		a.cfg.Report(r)
	}
}
