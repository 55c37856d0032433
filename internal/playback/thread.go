package playback

import (
	"sync"

	"github.com/user/cascada/internal/scenario"
	"github.com/user/cascada/internal/types"
)

// Sender identifies which party wrote a message.
type Sender string

const (
	SenderInitiator    Sender = "initiator"
	SenderCounterparty Sender = "counterparty"
)

// Status is the lifecycle state of a thread.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusConnecting  Status = "connecting"
	StatusNegotiating Status = "negotiating"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Message is a committed transcript entry.
type Message struct {
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
}

// TypingState is the partially typed message of a thread.
type TypingState struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// Thread is one negotiation with one counterparty. Its definition is
// immutable; transcript, typing state and status are guarded by mu and only
// mutated by the thread's own agent.
type Thread struct {
	def scenario.Definition

	mu         sync.RWMutex
	rounds     int
	status     Status
	failing    bool
	typing     *TypingState
	transcript []Message
}

// NewThread creates an idle thread with an empty transcript.
func NewThread(def scenario.Definition) *Thread {
	return &Thread{def: def, status: StatusIdle}
}

func (t *Thread) ID() types.ThreadID {
	return t.def.ID
}

func (t *Thread) Definition() scenario.Definition {
	return t.def
}

func (t *Thread) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Transcript returns a copy of the committed messages.
func (t *Thread) Transcript() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.transcript))
	copy(out, t.transcript)
	return out
}

func (t *Thread) setRounds(n int) {
	t.mu.Lock()
	t.rounds = n
	t.mu.Unlock()
}

func (t *Thread) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Thread) setFailing(v bool) {
	t.mu.Lock()
	t.failing = v
	t.mu.Unlock()
}

func (t *Thread) setTyping(sender Sender, text string) {
	t.mu.Lock()
	t.typing = &TypingState{Sender: sender, Text: text}
	t.mu.Unlock()
}

func (t *Thread) clearTyping() {
	t.mu.Lock()
	t.typing = nil
	t.mu.Unlock()
}

// commit clears the typing state and appends msg.
func (t *Thread) commit(msg Message) {
	t.mu.Lock()
	t.typing = nil
	t.transcript = append(t.transcript, msg)
	t.mu.Unlock()
}

// ThreadSnapshot is a point-in-time copy of a thread for rendering layers.
type ThreadSnapshot struct {
	ID                  types.ThreadID   `json:"id"`
	CounterpartyName    string           `json:"counterparty_name"`
	CounterpartyContact string           `json:"counterparty_contact"`
	SubjectProduct      string           `json:"subject_product"`
	Outcome             scenario.Outcome `json:"outcome"`
	FinalDiscount       float64          `json:"final_discount,omitempty"`
	RoundCount          int              `json:"round_count"`
	Status              Status           `json:"status"`
	Failing             bool             `json:"failing,omitempty"`
	Typing              *TypingState     `json:"typing,omitempty"`
	Transcript          []Message        `json:"transcript"`
}

func (t *Thread) Snapshot() ThreadSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := ThreadSnapshot{
		ID:                  t.def.ID,
		CounterpartyName:    t.def.CounterpartyName,
		CounterpartyContact: t.def.CounterpartyContact,
		SubjectProduct:      t.def.SubjectProduct,
		Outcome:             t.def.Outcome,
		FinalDiscount:       t.def.FinalDiscount,
		RoundCount:          t.rounds,
		Status:              t.status,
		Failing:             t.failing,
		Transcript:          make([]Message, len(t.transcript)),
	}
	copy(snap.Transcript, t.transcript)
	if t.typing != nil {
		typing := *t.typing
		snap.Typing = &typing
	}
	return snap
}
