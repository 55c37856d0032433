// Package api serves the HTTP control and journal endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/user/cascada/internal/items"
	"github.com/user/cascada/internal/orchestrator"
	"github.com/user/cascada/internal/state"
	"github.com/user/cascada/internal/types"
)

// Controller is the subset of the orchestrator the API drives.
type Controller interface {
	Start(ctx context.Context) (types.RunID, error)
	Restart(ctx context.Context) (types.RunID, error)
	Reset()
	SetSpeed(f float64) error
	Snapshot() orchestrator.Snapshot
	Summary() (orchestrator.Summary, bool)
}

// ItemTracker manages tracked product pages.
type ItemTracker interface {
	Track(ctx context.Context, rawURL, name string) (*types.TrackedItem, error)
	List(ctx context.Context) ([]*types.TrackedItem, error)
	Remove(ctx context.Context, id types.ItemID) error
}

// Server is the HTTP handler for the control API.
type Server struct {
	// base outlives requests; runs started over HTTP are bound to it.
	base        context.Context
	ctl         Controller
	runs        types.RunStore
	events      types.EventStore
	transcripts types.TranscriptStore
	items       ItemTracker
	mux         *http.ServeMux
}

// Stores groups the journal stores. Any of them may be nil, which disables
// the routes that need it.
type Stores struct {
	Runs        types.RunStore
	Events      types.EventStore
	Transcripts types.TranscriptStore
}

// NewServer creates a Server. Runs started through it live until base is
// cancelled or the run is reset.
func NewServer(base context.Context, ctl Controller, stores Stores, tracker ItemTracker) *Server {
	s := &Server{
		base:        base,
		ctl:         ctl,
		runs:        stores.Runs,
		events:      stores.Events,
		transcripts: stores.Transcripts,
		items:       tracker,
		mux:         http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/run", s.handleRun)
	s.mux.HandleFunc("POST /api/run/start", s.handleStart)
	s.mux.HandleFunc("POST /api/run/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/run/restart", s.handleRestart)
	s.mux.HandleFunc("PUT /api/run/speed", s.handleSpeed)
	s.mux.HandleFunc("GET /api/run/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleRunDetail)
	s.mux.HandleFunc("GET /api/runs/{id}/events", s.handleRunEvents)
	s.mux.HandleFunc("GET /api/items", s.handleItems)
	s.mux.HandleFunc("POST /api/items", s.handleTrackItem)
	s.mux.HandleFunc("DELETE /api/items/{id}", s.handleRemoveItem)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter, what string, err error) {
	slog.Error(what, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

type startResponse struct {
	RunID types.RunID `json:"run_id"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := s.ctl.Start(s.base)
	if errors.Is(err, orchestrator.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		internalError(w, "start run failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{RunID: id})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ctl.Reset()
	writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	id, err := s.ctl.Restart(s.base)
	if err != nil {
		internalError(w, "restart run failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{RunID: id})
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	err := s.ctl.SetSpeed(req.Speed)
	switch {
	case errors.Is(err, orchestrator.ErrInvalidSpeed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		internalError(w, "set speed failed", err)
	default:
		writeJSON(w, http.StatusOK, map[string]float64{"speed": req.Speed})
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.ctl.Summary()
	if !ok {
		writeError(w, http.StatusNotFound, "summary not visible yet")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type runResponse struct {
	*types.RunIndex
	EventCount int64 `json:"event_count"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	ctx := r.Context()
	runs, err := s.runs.List(ctx)
	if err != nil {
		internalError(w, "list runs failed", err)
		return
	}

	result := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp := runResponse{RunIndex: run}
		if s.events != nil {
			n, err := s.events.Count(ctx, run.RunID)
			if err != nil {
				slog.Warn("count events failed", "run_id", string(run.RunID), "error", err)
			}
			resp.EventCount = n
		}
		result = append(result, resp)
	}
	writeJSON(w, http.StatusOK, result)
}

type runDetail struct {
	*types.RunIndex
	Transcripts []*types.Transcript `json:"transcripts"`
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	id := types.RunID(r.PathValue("id"))
	run, err := s.runs.Get(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		internalError(w, "get run failed", err)
		return
	}

	detail := runDetail{RunIndex: run, Transcripts: []*types.Transcript{}}
	if s.transcripts != nil {
		list, err := s.transcripts.List(r.Context(), id)
		if err != nil {
			internalError(w, "list transcripts failed", err)
			return
		}
		detail.Transcripts = list
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	id := types.RunID(r.PathValue("id"))

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.events.Tail(r.Context(), id, limit)
	if err != nil {
		internalError(w, "tail events failed", err)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if s.items == nil {
		writeError(w, http.StatusServiceUnavailable, "items not configured")
		return
	}
	list, err := s.items.List(r.Context())
	if err != nil {
		internalError(w, "list items failed", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type trackRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (s *Server) handleTrackItem(w http.ResponseWriter, r *http.Request) {
	if s.items == nil {
		writeError(w, http.StatusServiceUnavailable, "items not configured")
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	item, err := s.items.Track(r.Context(), req.URL, req.Name)
	switch {
	case errors.Is(err, items.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, state.ErrItemExists):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		internalError(w, "track item failed", err)
	default:
		writeJSON(w, http.StatusCreated, item)
	}
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if s.items == nil {
		writeError(w, http.StatusServiceUnavailable, "items not configured")
		return
	}
	err := s.items.Remove(r.Context(), types.ItemID(r.PathValue("id")))
	if errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		internalError(w, "remove item failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
