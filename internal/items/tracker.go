package items

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/cascada/internal/types"
)

// PageFetcher fetches a product page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Tracker adds, lists and removes tracked items.
type Tracker struct {
	fetcher PageFetcher
	store   types.ItemStore
}

// NewTracker creates a Tracker.
func NewTracker(fetcher PageFetcher, store types.ItemStore) *Tracker {
	return &Tracker{fetcher: fetcher, store: store}
}

// Track fetches rawURL, names the item after the page and stores it.
// An explicit name overrides the page's.
func (t *Tracker) Track(ctx context.Context, rawURL, name string) (*types.TrackedItem, error) {
	u, store, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	item := &types.TrackedItem{URL: u.String(), Name: name, Store: store}
	if item.Name == "" {
		page, err := t.fetcher.Fetch(ctx, item.URL)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", item.URL, err)
		}
		item.Name = page.Name
	}

	if err := t.store.Add(ctx, item); err != nil {
		return nil, err
	}
	slog.Info("item tracked", "item_id", string(item.ID), "store", item.Store, "name", item.Name)
	return item, nil
}

// List returns every tracked item.
func (t *Tracker) List(ctx context.Context) ([]*types.TrackedItem, error) {
	return t.store.List(ctx)
}

// Remove stops tracking the item.
func (t *Tracker) Remove(ctx context.Context, id types.ItemID) error {
	if err := t.store.Remove(ctx, id); err != nil {
		return err
	}
	slog.Info("item removed", "item_id", string(id))
	return nil
}
