package state

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/cascada/internal/types"
)

// RunStore is a JSON-file-backed run index stored in runs/runs.json.
type RunStore struct {
	root string
	mu   sync.RWMutex
}

// NewRunStore creates a new file-backed RunStore rooted at the given directory.
func NewRunStore(root string) *RunStore {
	return &RunStore{root: root}
}

func (s *RunStore) indexPath() string {
	return filepath.Join(s.root, "runs", "runs.json")
}

func (s *RunStore) load() ([]*types.RunIndex, error) {
	var runs []*types.RunIndex
	if _, err := readJSON(s.indexPath(), &runs); err != nil {
		return nil, fmt.Errorf("load run index: %w", err)
	}
	return runs, nil
}

// Create adds a run to the index. Creating an existing run id fails.
func (s *RunStore) Create(_ context.Context, run *types.RunIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range runs {
		if existing.RunID == run.RunID {
			return fmt.Errorf("run already exists: %s", run.RunID)
		}
	}

	now := time.Now()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}
	runs = append(runs, run)
	return writeJSON(s.indexPath(), runs)
}

// Get returns the run with the given id.
func (s *RunStore) Get(_ context.Context, id types.RunID) (*types.RunIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if run.RunID == id {
			return run, nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
}

// List returns all runs, most recently started first.
func (s *RunStore) List(_ context.Context) ([]*types.RunIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if runs == nil {
		runs = []*types.RunIndex{}
	}
	return runs, nil
}

// Update replaces the stored run, setting UpdatedAt to now.
func (s *RunStore) Update(_ context.Context, run *types.RunIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.load()
	if err != nil {
		return err
	}
	for i, existing := range runs {
		if existing.RunID == run.RunID {
			run.UpdatedAt = time.Now()
			runs[i] = run
			return writeJSON(s.indexPath(), runs)
		}
	}
	return fmt.Errorf("run %s: %w", run.RunID, ErrNotFound)
}
