package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/cascada/internal/types"
)

// ErrItemExists is returned when tracking a URL that is already tracked.
var ErrItemExists = errors.New("item already tracked")

// ItemStore is a JSON-file-backed store for tracked product pages.
type ItemStore struct {
	path string
	mu   sync.RWMutex
}

// NewItemStore creates a new file-backed ItemStore at the given file path.
func NewItemStore(path string) *ItemStore {
	return &ItemStore{path: path}
}

// Path returns the file path used by this store.
func (s *ItemStore) Path() string {
	return s.path
}

func (s *ItemStore) load() ([]*types.TrackedItem, error) {
	var items []*types.TrackedItem
	if _, err := readJSON(s.path, &items); err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return items, nil
}

// Add stores a new item, assigning an id and creation time when unset.
// URLs are unique.
func (s *ItemStore) Add(_ context.Context, item *types.TrackedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range items {
		if existing.URL == item.URL {
			return fmt.Errorf("%s: %w", item.URL, ErrItemExists)
		}
	}

	if item.ID == "" {
		item.ID = types.NewItemID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	items = append(items, item)
	return writeJSON(s.path, items)
}

// Get finds an item by id.
func (s *ItemStore) Get(_ context.Context, id types.ItemID) (*types.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
}

// List returns all items in insertion order. Returns an empty slice if the
// file doesn't exist.
func (s *ItemStore) List(_ context.Context) ([]*types.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.load()
	if err != nil {
		return nil, err
	}
	if items == nil {
		return []*types.TrackedItem{}, nil
	}
	return items, nil
}

// Remove deletes an item by id.
func (s *ItemStore) Remove(_ context.Context, id types.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	for i, item := range items {
		if item.ID == id {
			items = append(items[:i], items[i+1:]...)
			return writeJSON(s.path, items)
		}
	}
	return fmt.Errorf("item %s: %w", id, ErrNotFound)
}
