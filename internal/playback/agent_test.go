package playback

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/cascada/internal/scenario"
	"github.com/user/cascada/internal/script"
)

func newTestAgent(t *testing.T, def scenario.Definition, clock Clock, seed int64, speed float64) (*Agent, *[]Result, *recorder) {
	t.Helper()
	s := scenario.Default()
	if def.SubjectProduct == "" {
		def.SubjectProduct = s.Product
	}
	var mu sync.Mutex
	results := &[]Result{}
	rec := &recorder{}
	a := NewAgent(AgentConfig{
		RunID:    "run-1",
		Thread:   NewThread(def),
		Script:   script.NewContext(s, def),
		Clock:    clock,
		Rand:     rand.New(rand.NewSource(seed)),
		Speed:    speed,
		Listener: rec.listen,
		Report: func(r Result) {
			mu.Lock()
			*results = append(*results, r)
			mu.Unlock()
		},
	})
	return a, results, rec
}

func successDef() scenario.Definition {
	return scenario.Definition{
		ID:               "gigatron",
		CounterpartyName: "Gigatron",
		Outcome:          scenario.OutcomeWillSucceed,
		FinalDiscount:    10,
	}
}

func failureDef() scenario.Definition {
	return scenario.Definition{
		ID:                  "setec",
		CounterpartyName:    "Setec",
		Outcome:             scenario.OutcomeWillFail,
		FixedFailureMessage: "We do not offer bulk discounts.",
	}
}

func TestAgentFailingThread(t *testing.T) {
	a, results, rec := newTestAgent(t, failureDef(), &fakeClock{}, 1, 1)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	th := a.cfg.Thread
	if th.Status() != StatusFailed {
		t.Errorf("expected failed, got %s", th.Status())
	}
	msgs := th.Transcript()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Sender != SenderInitiator || msgs[1].Sender != SenderCounterparty {
		t.Errorf("unexpected senders: %s, %s", msgs[0].Sender, msgs[1].Sender)
	}
	if msgs[1].Content != "We do not offer bulk discounts." {
		t.Errorf("expected fixed failure message, got %q", msgs[1].Content)
	}
	if len(*results) != 1 || (*results)[0].Success || (*results)[0].Discount != 0 {
		t.Errorf("unexpected results: %+v", *results)
	}
	if th.Snapshot().Failing {
		t.Error("failing flag should be cleared once the thread is failed")
	}
	if len(rec.ofKind(UpdateFailing)) != 1 {
		t.Error("expected one failing update")
	}
}

func TestAgentSuccessfulThread(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		a, results, _ := newTestAgent(t, successDef(), &fakeClock{}, seed, 1)
		if err := a.Run(context.Background()); err != nil {
			t.Fatalf("seed %d: Run: %v", seed, err)
		}

		if a.Rounds() < 2 || a.Rounds() > 4 {
			t.Errorf("seed %d: rounds %d out of range", seed, a.Rounds())
		}
		th := a.cfg.Thread
		if th.Status() != StatusSucceeded {
			t.Errorf("seed %d: expected succeeded, got %s", seed, th.Status())
		}
		msgs := th.Transcript()
		if len(msgs) != 2*a.Rounds() {
			t.Errorf("seed %d: expected %d messages, got %d", seed, 2*a.Rounds(), len(msgs))
		}
		for i, m := range msgs {
			want := SenderInitiator
			if i%2 == 1 {
				want = SenderCounterparty
			}
			if m.Sender != want {
				t.Errorf("seed %d: message %d sender %s, want %s", seed, i, m.Sender, want)
			}
		}
		last := msgs[len(msgs)-1]
		if !strings.Contains(last.Content, "10%") {
			t.Errorf("seed %d: final reply should state the discount: %q", seed, last.Content)
		}
		if len(*results) != 1 || !(*results)[0].Success || (*results)[0].Discount != 10 {
			t.Errorf("seed %d: unexpected results: %+v", seed, *results)
		}
	}
}

func TestAgentStatusSequence(t *testing.T) {
	a, _, rec := newTestAgent(t, successDef(), &fakeClock{}, 7, 1)
	if err := a.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var got []Status
	for _, u := range rec.ofKind(UpdateStatus) {
		got = append(got, u.Status)
	}
	want := []Status{StatusConnecting, StatusNegotiating, StatusSucceeded}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	for _, u := range rec.updates {
		if u.RunID != "run-1" || u.ThreadID != "gigatron" {
			t.Errorf("update not tagged with run and thread: %+v", u)
		}
	}
}

func TestAgentRunTwice(t *testing.T) {
	a, results, _ := newTestAgent(t, failureDef(), &fakeClock{}, 1, 1)
	if err := a.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Run(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Errorf("expected ErrNotIdle, got %v", err)
	}
	if len(*results) != 1 {
		t.Errorf("expected exactly one report, got %d", len(*results))
	}
}

func TestAgentCancelled(t *testing.T) {
	// Cancelling at every suspend point must never leave a partial message
	// or produce a report.
	probe := &fakeClock{}
	a, _, _ := newTestAgent(t, successDef(), probe, 5, 1)
	if err := a.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	total := probe.count()

	for n := 1; n <= total; n++ {
		ctx, cancel := context.WithCancel(context.Background())
		clock := &fakeClock{cancelAt: n, cancel: cancel}
		a, results, _ := newTestAgent(t, successDef(), clock, 5, 1)

		err := a.Run(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelAt=%d: expected context.Canceled, got %v", n, err)
		}
		if len(*results) != 0 {
			t.Errorf("cancelAt=%d: cancelled agent reported %+v", n, *results)
		}
		th := a.cfg.Thread
		if th.Status().Terminal() {
			t.Errorf("cancelAt=%d: cancelled thread reached %s", n, th.Status())
		}
		snap := th.Snapshot()
		if snap.Typing != nil {
			t.Errorf("cancelAt=%d: typing state left behind", n)
		}
		for _, m := range snap.Transcript {
			if m.Content == "" {
				t.Errorf("cancelAt=%d: empty message committed", n)
			}
		}
		cancel()
	}
}

func TestAgentSameSeedSameTranscript(t *testing.T) {
	a1, _, _ := newTestAgent(t, successDef(), &fakeClock{}, 42, 1)
	a2, _, _ := newTestAgent(t, successDef(), &fakeClock{}, 42, 1)
	if err := a1.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a2.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	m1, m2 := a1.cfg.Thread.Transcript(), a2.cfg.Thread.Transcript()
	if len(m1) != len(m2) {
		t.Fatalf("transcripts differ in length: %d vs %d", len(m1), len(m2))
	}
	for i := range m1 {
		if m1[i] != m2[i] {
			t.Errorf("message %d differs", i)
		}
	}
}

func TestAgentSpeedScalesDelays(t *testing.T) {
	slow, fast := &fakeClock{}, &fakeClock{}
	a1, _, _ := newTestAgent(t, successDef(), slow, 9, 1)
	a2, _, _ := newTestAgent(t, successDef(), fast, 9, 2)
	if err := a1.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a2.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if slow.count() != fast.count() {
		t.Fatalf("same seed should suspend the same number of times: %d vs %d", slow.count(), fast.count())
	}
	diff := slow.total() - 2*fast.total()
	if diff < 0 {
		diff = -diff
	}
	// Each scaled sleep may lose a nanosecond to truncation.
	if diff > time.Duration(2*slow.count()) {
		t.Errorf("speed 2 should halve delays: slow=%v fast=%v", slow.total(), fast.total())
	}
}

func TestAgentConnectDelay(t *testing.T) {
	clock := &fakeClock{}
	a, _, _ := newTestAgent(t, failureDef(), clock, 1, 1)
	a.cfg.StartDelayMs = 800
	if err := a.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if clock.sleeps[0] != Scale(800, 1) {
		t.Errorf("first sleep should be the start delay, got %v", clock.sleeps[0])
	}
	if clock.sleeps[1] != Scale(connectMs, 1) {
		t.Errorf("second sleep should be the connect delay, got %v", clock.sleeps[1])
	}
}

func TestAgentSlotsLimitConcurrency(t *testing.T) {
	slots := semaphore.NewWeighted(1)
	if !slots.TryAcquire(1) {
		t.Fatal("acquire")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a, results, rec := newTestAgent(t, failureDef(), &fakeClock{}, 1, 1)
	a.cfg.Slots = slots

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled while waiting for a slot, got %v", err)
	}
	if len(*results) != 0 || len(rec.ofKind(UpdateStatus)) != 0 {
		t.Error("agent should not have progressed without a slot")
	}
}
