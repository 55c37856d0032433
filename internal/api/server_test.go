package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/cascada/internal/items"
	"github.com/user/cascada/internal/orchestrator"
	"github.com/user/cascada/internal/state"
	"github.com/user/cascada/internal/types"
)

type fakeController struct {
	running  bool
	startCtx context.Context
	resets   int
	speed    float64
	summary  *orchestrator.Summary
}

func (f *fakeController) Start(ctx context.Context) (types.RunID, error) {
	if f.running {
		return "", orchestrator.ErrRunInProgress
	}
	f.running = true
	f.startCtx = ctx
	return "run-1", nil
}

func (f *fakeController) Restart(ctx context.Context) (types.RunID, error) {
	f.Reset()
	return f.Start(ctx)
}

func (f *fakeController) Reset() {
	f.resets++
	f.running = false
}

func (f *fakeController) SetSpeed(v float64) error {
	if v <= 0 {
		return orchestrator.ErrInvalidSpeed
	}
	if f.running {
		return orchestrator.ErrRunInProgress
	}
	f.speed = v
	return nil
}

func (f *fakeController) Snapshot() orchestrator.Snapshot {
	return orchestrator.Snapshot{Running: f.running, Speed: f.speed, Stage: orchestrator.StageAwaitingAll}
}

func (f *fakeController) Summary() (orchestrator.Summary, bool) {
	if f.summary == nil {
		return orchestrator.Summary{}, false
	}
	return *f.summary, true
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(_ context.Context, rawURL string) (*items.Page, error) {
	return &items.Page{URL: rawURL, Name: "MacBook Pro M4"}, nil
}

type fixture struct {
	srv    *Server
	ctl    *fakeController
	runs   *state.RunStore
	events *state.EventStore
	trs    *state.TranscriptStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		ctl:    &fakeController{speed: 1},
		runs:   state.NewRunStore(dir),
		events: state.NewEventStore(dir),
		trs:    state.NewTranscriptStore(dir),
	}
	tracker := items.NewTracker(fakeFetcher{}, state.NewItemStore(filepath.Join(dir, "items.json")))
	f.srv = NewServer(context.Background(), f.ctl, Stores{Runs: f.runs, Events: f.events, Transcripts: f.trs}, tracker)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := setup(t)
	w := f.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestStartRun(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/api/run/start", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["run_id"] != "run-1" {
		t.Errorf("unexpected run id %q", resp["run_id"])
	}
	if f.ctl.startCtx != context.Background() {
		t.Error("run should be bound to the server context, not the request")
	}

	w = f.do(http.MethodPost, "/api/run/start", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409 while running, got %d", w.Code)
	}
}

func TestRunSnapshot(t *testing.T) {
	f := setup(t)
	f.ctl.running = true

	w := f.do(http.MethodGet, "/api/run", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var snap orchestrator.Snapshot
	decode(t, w, &snap)
	if !snap.Running || snap.Stage != orchestrator.StageAwaitingAll {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestResetAndRestart(t *testing.T) {
	f := setup(t)
	f.ctl.running = true

	w := f.do(http.MethodPost, "/api/run/reset", "")
	if w.Code != http.StatusOK || f.ctl.resets != 1 || f.ctl.running {
		t.Fatalf("reset not applied: code=%d resets=%d", w.Code, f.ctl.resets)
	}

	w = f.do(http.MethodPost, "/api/run/restart", "")
	if w.Code != http.StatusAccepted || f.ctl.resets != 2 || !f.ctl.running {
		t.Fatalf("restart not applied: code=%d resets=%d", w.Code, f.ctl.resets)
	}
}

func TestSetSpeed(t *testing.T) {
	f := setup(t)

	if w := f.do(http.MethodPut, "/api/run/speed", `{"speed":2}`); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if f.ctl.speed != 2 {
		t.Errorf("expected speed 2, got %v", f.ctl.speed)
	}
	if w := f.do(http.MethodPut, "/api/run/speed", `{"speed":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for zero speed, got %d", w.Code)
	}
	if w := f.do(http.MethodPut, "/api/run/speed", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad body, got %d", w.Code)
	}

	f.ctl.running = true
	if w := f.do(http.MethodPut, "/api/run/speed", `{"speed":3}`); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 while running, got %d", w.Code)
	}
	if f.ctl.speed != 2 {
		t.Errorf("speed changed during a run: %v", f.ctl.speed)
	}
}

func TestSummaryHiddenUntilVisible(t *testing.T) {
	f := setup(t)

	if w := f.do(http.MethodGet, "/api/run/summary", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	f.ctl.summary = &orchestrator.Summary{RunID: "run-1", BestDiscount: 10, BestCounterparty: "Gigatron"}
	w := f.do(http.MethodGet, "/api/run/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var sum orchestrator.Summary
	decode(t, w, &sum)
	if sum.BestDiscount != 10 || sum.BestCounterparty != "Gigatron" {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestRunJournalRoutes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.runs.Create(ctx, &types.RunIndex{RunID: "r1", Status: types.RunStatusSettled, BestDiscount: 10}); err != nil {
		t.Fatal(err)
	}
	for _, kind := range []string{"run_started", "status", "thread_complete"} {
		if err := f.events.Append(ctx, &types.Event{ID: types.NewEventID(), RunID: "r1", Type: kind, At: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.trs.Put(ctx, &types.Transcript{RunID: "r1", ThreadID: "t1", Counterparty: "Gigatron", Status: "succeeded"}); err != nil {
		t.Fatal(err)
	}

	w := f.do(http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var runs []map[string]any
	decode(t, w, &runs)
	if len(runs) != 1 || runs[0]["run_id"] != "r1" || runs[0]["event_count"] != float64(3) {
		t.Errorf("unexpected runs %+v", runs)
	}

	w = f.do(http.MethodGet, "/api/runs/r1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var detail struct {
		RunID       string              `json:"run_id"`
		Transcripts []*types.Transcript `json:"transcripts"`
	}
	decode(t, w, &detail)
	if detail.RunID != "r1" || len(detail.Transcripts) != 1 || detail.Transcripts[0].Counterparty != "Gigatron" {
		t.Errorf("unexpected detail %+v", detail)
	}

	if w := f.do(http.MethodGet, "/api/runs/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}

	w = f.do(http.MethodGet, "/api/runs/r1/events?limit=2", "")
	var events []*types.Event
	decode(t, w, &events)
	if len(events) != 2 || events[1].Type != "thread_complete" {
		t.Errorf("expected last 2 events, got %d", len(events))
	}

	w = f.do(http.MethodGet, "/api/runs/none/events", "")
	decode(t, w, &events)
	if events == nil || len(events) != 0 {
		t.Errorf("expected empty list, got %v", events)
	}
}

func TestItemRoutes(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/api/items", `{"url":"https://www.gigatron.rs/macbook"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var item types.TrackedItem
	decode(t, w, &item)
	if item.Name != "MacBook Pro M4" || item.Store != "gigatron.rs" || item.ID == "" {
		t.Errorf("unexpected item %+v", item)
	}

	if w := f.do(http.MethodPost, "/api/items", `{"url":"https://www.gigatron.rs/macbook"}`); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for duplicate, got %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/items", `{"url":"ftp://x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad url, got %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/items", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing url, got %d", w.Code)
	}

	w = f.do(http.MethodGet, "/api/items", "")
	var list []types.TrackedItem
	decode(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 item, got %d", len(list))
	}

	if w := f.do(http.MethodDelete, "/api/items/"+string(item.ID), ""); w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
	if w := f.do(http.MethodDelete, "/api/items/"+string(item.ID), ""); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestJournalNotConfigured(t *testing.T) {
	srv := NewServer(context.Background(), &fakeController{}, Stores{}, nil)
	for _, path := range []string{"/api/runs", "/api/runs/x", "/api/runs/x/events", "/api/items"} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status 503, got %d", path, w.Code)
		}
	}
}
