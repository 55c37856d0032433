// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// Event is one journal entry of a playback run.
type Event struct {
	ID       EventID         `json:"id"`
	RunID    RunID           `json:"run_id"`
	ThreadID ThreadID        `json:"thread_id,omitempty"`
	Seq      int64           `json:"seq"`
	Type     string          `json:"type"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Deal is a successful negotiation outcome.
type Deal struct {
	Counterparty string  `json:"counterparty"`
	Discount     float64 `json:"discount"`
}

// Run journal statuses.
const (
	RunStatusRunning = "running"
	RunStatusSettled = "settled"
	RunStatusReset   = "reset"
)

// RunIndex is the journal entry summarising one run.
type RunIndex struct {
	RunID        RunID      `json:"run_id"`
	Scenario     string     `json:"scenario"`
	Status       string     `json:"status"`
	Speed        float64    `json:"speed"`
	Seed         int64      `json:"seed"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	BestDiscount float64    `json:"best_discount,omitempty"`
	Deals        []Deal     `json:"deals,omitempty"`
}

// TrackedItem is a product page the group is watching.
type TrackedItem struct {
	ID        ItemID    `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Store     string    `json:"store"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptMessage is one committed message of a journaled transcript.
type TranscriptMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Transcript is the final conversation of one thread of a run.
type Transcript struct {
	RunID        RunID               `json:"run_id"`
	ThreadID     ThreadID            `json:"thread_id"`
	Counterparty string              `json:"counterparty"`
	Status       string              `json:"status"`
	Discount     float64             `json:"discount,omitempty"`
	Messages     []TranscriptMessage `json:"messages"`
	CreatedAt    time.Time           `json:"created_at"`
}
