package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/pipeline"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
	Sink    string `json:"sink,omitempty"`
}

type statusResponse struct {
	pipeline.Snapshot
	Totals map[string]int `json:"totals"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	code := http.StatusOK

	if s.sink != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.sink.Ping(ctx); err != nil {
			s.logger.Warn("sink health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Sink = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp.Sink = "ok"
		}
	}

	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	totals := make(map[string]int)
	for _, f := range snap.Files {
		totals[string(f.State)]++
	}
	writeJSON(w, http.StatusOK, statusResponse{Snapshot: snap, Totals: totals})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "file")
	for _, f := range s.tracker.Snapshot().Files {
		if f.ID == id {
			writeJSON(w, http.StatusOK, f)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown file " + id})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
