package server

import (
	"net/http"
)

// health reports 503 when the last cycle failed for every source or the
// database is unreachable.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()

	status, code := "ok", http.StatusOK
	if !s.metrics.Healthy() {
		status, code = "error", http.StatusServiceUnavailable
	}

	database := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("database ping failed", "error", err)
		database = "error"
		status, code = "error", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"database":   database,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetStats())
}
