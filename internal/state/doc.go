// Package state provides filesystem-backed storage implementations.
package state

import (
	"errors"

	"github.com/user/cascada/internal/types"
)

// ErrNotFound is wrapped by lookups of unknown runs, transcripts and items.
var ErrNotFound = errors.New("not found")

// Compile-time interface compliance checks.
var _ types.RunStore = (*RunStore)(nil)
var _ types.EventStore = (*EventStore)(nil)
var _ types.TranscriptStore = (*TranscriptStore)(nil)
var _ types.ItemStore = (*ItemStore)(nil)
