package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"risparmio/internal/storage"
)

// handleGetInsight returns the caller's AI-generated summary for a month.
func (s *Server) handleGetInsight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := userIDFrom(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	month, err := parseMonthParam(r, time.Now())
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid month, expected YYYY-MM")
		return
	}

	insight, err := s.store.GetInsight(r.Context(), userID, month)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "no insight for this month yet")
			return
		}
		slog.ErrorContext(r.Context(), "Insight load error", "error", err, "user_id", userID, "month", month.String())
		errorJSON(w, http.StatusInternalServerError, "failed to load insight")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"month":        insight.Month.String(),
		"text":         insight.Text,
		"model":        insight.Model,
		"generated_at": insight.GeneratedAt.Format(time.RFC3339),
	})
}
