package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/user/cascada/internal/types"
)

func TestItemStore_ListEmpty(t *testing.T) {
	store := NewItemStore(filepath.Join(t.TempDir(), "items.json"))

	items, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil list, got %v", items)
	}
}

func TestItemStore_AddGetRemove(t *testing.T) {
	store := NewItemStore(filepath.Join(t.TempDir(), "data", "items.json"))
	ctx := context.Background()

	item := &types.TrackedItem{URL: "https://gigatron.rs/macbook", Name: "MacBook Pro", Store: "gigatron.rs"}
	if err := store.Add(ctx, item); err != nil {
		t.Fatal(err)
	}
	if item.ID == "" || item.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned: %+v", item)
	}

	dup := &types.TrackedItem{URL: item.URL, Name: "again"}
	if err := store.Add(ctx, dup); !errors.Is(err, ErrItemExists) {
		t.Errorf("expected ErrItemExists, got %v", err)
	}

	got, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "MacBook Pro" || got.Store != "gigatron.rs" {
		t.Errorf("unexpected item: %+v", got)
	}

	if err := store.Remove(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if err := store.Remove(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound removing twice, got %v", err)
	}
}

func TestItemStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	ctx := context.Background()

	if err := NewItemStore(path).Add(ctx, &types.TrackedItem{URL: "https://a.example/x"}); err != nil {
		t.Fatal(err)
	}
	if err := NewItemStore(path).Add(ctx, &types.TrackedItem{URL: "https://b.example/y"}); err != nil {
		t.Fatal(err)
	}

	items, err := NewItemStore(path).List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].URL != "https://a.example/x" {
		t.Errorf("expected insertion order preserved, got %+v", items)
	}
}
