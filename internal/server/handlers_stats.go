package server

import (
	"log/slog"
	"net/http"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	size, err := s.db.DatabaseSizeBytes()
	if err != nil {
		slog.Warn("Failed to stat database", "error", err)
	}
	jsonResponse(w, map[string]any{
		"status":        "ok",
		"version":       s.version,
		"databaseBytes": size,
		"progress":      s.sched.Progress(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.RecentRuns(queryInt(r, "limit", 20))
	if err != nil {
		fail(w, "runs", err)
		return
	}
	jsonResponse(w, map[string]any{"success": true, "runs": runs})
}
