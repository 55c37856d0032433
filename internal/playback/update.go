package playback

import (
	"time"

	"github.com/user/cascada/internal/types"
)

// UpdateKind classifies an Update.
type UpdateKind string

const (
	UpdateRunStarted     UpdateKind = "run_started"
	UpdateStatus         UpdateKind = "status"
	UpdateTyping         UpdateKind = "typing"
	UpdateMessage        UpdateKind = "message"
	UpdateFailing        UpdateKind = "failing"
	UpdateThreadComplete UpdateKind = "thread_complete"
	UpdateReveal         UpdateKind = "reveal"
	UpdateRunSettled     UpdateKind = "run_settled"
	UpdateRunReset       UpdateKind = "run_reset"
)

// Update is a progress notification for rendering and journaling layers.
// Only the fields relevant to Kind are set.
type Update struct {
	Kind     UpdateKind     `json:"kind"`
	RunID    types.RunID    `json:"run_id"`
	ThreadID types.ThreadID `json:"thread_id,omitempty"`
	At       time.Time      `json:"at"`

	Status   Status  `json:"status,omitempty"`
	Sender   Sender  `json:"sender,omitempty"`
	Text     string  `json:"text,omitempty"`
	Failing  bool    `json:"failing,omitempty"`
	Success  bool    `json:"success,omitempty"`
	Discount float64 `json:"discount,omitempty"`

	Stage string       `json:"stage,omitempty"`
	Speed float64      `json:"speed,omitempty"`
	Seed  int64        `json:"seed,omitempty"`
	Deals []types.Deal `json:"deals,omitempty"`
}

// Listener receives updates. Listeners are called from agent goroutines and
// must be safe for concurrent use and must not block for long.
type Listener func(Update)
