// internal/types/interfaces.go
package types

import "context"

type RunStore interface {
	Create(ctx context.Context, run *RunIndex) error
	Get(ctx context.Context, id RunID) (*RunIndex, error)
	List(ctx context.Context) ([]*RunIndex, error)
	Update(ctx context.Context, run *RunIndex) error
}

type EventStore interface {
	Append(ctx context.Context, event *Event) error
	Tail(ctx context.Context, runID RunID, limit int) ([]*Event, error)
	Count(ctx context.Context, runID RunID) (int64, error)
}

type TranscriptStore interface {
	Put(ctx context.Context, t *Transcript) error
	Get(ctx context.Context, runID RunID, threadID ThreadID) (*Transcript, error)
	List(ctx context.Context, runID RunID) ([]*Transcript, error)
}

type ItemStore interface {
	Add(ctx context.Context, item *TrackedItem) error
	Get(ctx context.Context, id ItemID) (*TrackedItem, error)
	List(ctx context.Context) ([]*TrackedItem, error)
	Remove(ctx context.Context, id ItemID) error
}
