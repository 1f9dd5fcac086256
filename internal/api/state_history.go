package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleHistory returns journaled notifications for one entity, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "notification journal is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	id := chi.URLParam(r, "id")
	entries, err := s.history.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("history query failed", "entity_id", id, "error", err)
		writeInternalError(w, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}
