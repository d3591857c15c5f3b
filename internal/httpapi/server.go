// Package httpapi serves completed backtest runs over HTTP in JSON form. It
// reads from the run store only; runs are produced by the backtest command
// and never mutated through this API.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"ortrader/internal/domain"
	"ortrader/internal/store"
)

const defaultRunLimit = 50

// Server serves the backtest results API.
type Server struct {
	runs store.RunStore
	log  *slog.Logger
}

// NewServer creates a results API server over the given run store.
func NewServer(runs store.RunStore) *Server {
	return &Server{
		runs: runs,
		log:  slog.Default().With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/stats", s.handleRunStats)
	mux.HandleFunc("GET /api/v1/runs/{id}/trades", s.handleRunTrades)
	mux.HandleFunc("GET /api/v1/runs/{id}/dailies", s.handleRunDailies)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	summaries := make([]RunSummary, 0, len(runs))
	for i := range runs {
		summaries = append(summaries, toRunSummary(&runs[i]))
	}
	writeJSON(w, RunsResponse{Runs: summaries})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, toRunSummary(run))
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, run.Stats)
}

func (s *Server) handleRunTrades(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	trades, err := s.runs.TradesForRun(r.Context(), run.ID)
	if err != nil {
		s.log.Error("loading trades", "run", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}
	writeJSON(w, TradesResponse{RunID: run.ID, Trades: trades})
}

func (s *Server) handleRunDailies(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	dailies, err := s.runs.DailiesForRun(r.Context(), run.ID)
	if err != nil {
		s.log.Error("loading dailies", "run", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dailies")
		return
	}
	writeJSON(w, DailiesResponse{RunID: run.ID, Dailies: dailies})
}

// lookupRun resolves the {id} path value against the store, writing the
// error response itself when the run cannot be served.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*domain.BacktestRun, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id required")
		return nil, false
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run "+id+" not found")
			return nil, false
		}
		s.log.Error("loading run", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return nil, false
	}
	return run, true
}
