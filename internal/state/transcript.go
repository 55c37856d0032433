package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/user/cascada/internal/types"
)

// TranscriptStore keeps the final conversation of every finished thread as
// one JSON file at runs/<runID>/transcripts/<threadID>.json.
type TranscriptStore struct {
	root string
}

// NewTranscriptStore creates a new file-backed TranscriptStore rooted at the given directory.
func NewTranscriptStore(root string) *TranscriptStore {
	return &TranscriptStore{root: root}
}

func (s *TranscriptStore) dir(runID types.RunID) string {
	return filepath.Join(s.root, "runs", string(runID), "transcripts")
}

func (s *TranscriptStore) path(runID types.RunID, threadID types.ThreadID) string {
	return filepath.Join(s.dir(runID), string(threadID)+".json")
}

// Put stores t, replacing an earlier transcript of the same thread.
func (s *TranscriptStore) Put(_ context.Context, t *types.Transcript) error {
	if t.RunID == "" || t.ThreadID == "" {
		return errors.New("transcript needs run and thread ids")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return writeJSON(s.path(t.RunID, t.ThreadID), t)
}

// Get returns the transcript of one thread.
func (s *TranscriptStore) Get(_ context.Context, runID types.RunID, threadID types.ThreadID) (*types.Transcript, error) {
	var t types.Transcript
	ok, err := readJSON(s.path(runID, threadID), &t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("transcript %s/%s: %w", runID, threadID, ErrNotFound)
	}
	return &t, nil
}

// List returns every stored transcript of the run in completion order.
func (s *TranscriptStore) List(_ context.Context, runID types.RunID) ([]*types.Transcript, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir(runID), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob transcripts: %w", err)
	}

	out := make([]*types.Transcript, 0, len(matches))
	for _, path := range matches {
		var t types.Transcript
		if _, err := readJSON(path, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
