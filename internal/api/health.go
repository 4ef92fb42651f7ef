package api

import (
	"context"
	"net/http"
	"time"

	"github.com/valenrosasc/chatbot/internal/metrics"
)

type startingResponse struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// handleHealth reports whether startup finished.
// GET /health
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("health")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, startingResponse{Status: "starting"})
		return
	}
	uptime := s.now().Sub(s.started)
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", UptimeSeconds: int64(uptime / time.Second)})
}

func (s *HTTPServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *HTTPServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	if !s.ready.Load() {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	if err := s.db.PingContext(ctxPing); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctxPing).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
