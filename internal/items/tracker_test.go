package items

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/user/cascada/internal/state"
)

type fakeFetcher struct {
	calls int
	page  *Page
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func newTracker(t *testing.T, f PageFetcher) *Tracker {
	t.Helper()
	return NewTracker(f, state.NewItemStore(filepath.Join(t.TempDir(), "items.json")))
}

func TestTrackNamesItemFromPage(t *testing.T) {
	f := &fakeFetcher{page: &Page{Name: "MacBook Pro"}}
	tr := newTracker(t, f)

	item, err := tr.Track(context.Background(), "https://www.gigatron.rs/macbook", "")
	if err != nil {
		t.Fatal(err)
	}
	if item.Name != "MacBook Pro" || item.Store != "gigatron.rs" || item.ID == "" {
		t.Errorf("unexpected item: %+v", item)
	}

	list, err := tr.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != item.ID {
		t.Errorf("expected tracked item in list, got %+v", list)
	}
}

func TestTrackExplicitNameSkipsFetch(t *testing.T) {
	f := &fakeFetcher{err: errors.New("offline")}
	tr := newTracker(t, f)

	item, err := tr.Track(context.Background(), "https://setec.mk/m4", "Setec M4")
	if err != nil {
		t.Fatal(err)
	}
	if f.calls != 0 || item.Name != "Setec M4" {
		t.Errorf("expected no fetch and explicit name, calls=%d item=%+v", f.calls, item)
	}
}

func TestTrackErrors(t *testing.T) {
	tr := newTracker(t, &fakeFetcher{err: errors.New("offline")})

	if _, err := tr.Track(context.Background(), "not a url", ""); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
	if _, err := tr.Track(context.Background(), "https://anhoch.com/m4", ""); err == nil {
		t.Error("expected fetch error")
	}

	ok := newTracker(t, &fakeFetcher{page: &Page{Name: "x"}})
	if _, err := ok.Track(context.Background(), "https://anhoch.com/m4", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := ok.Track(context.Background(), "https://anhoch.com/m4", ""); !errors.Is(err, state.ErrItemExists) {
		t.Errorf("expected ErrItemExists, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	tr := newTracker(t, &fakeFetcher{page: &Page{Name: "x"}})
	item, err := tr.Track(context.Background(), "https://istyle.hr/m4", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Remove(context.Background(), item.ID); err != nil {
		t.Fatal(err)
	}
	if err := tr.Remove(context.Background(), item.ID); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
