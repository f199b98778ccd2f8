package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

type recurringRequest struct {
	Type        string `json:"type"`
	StartDate   string `json:"start_date"`         // YYYY-MM-DD
	EndDate     string `json:"end_date,omitempty"` // YYYY-MM-DD, empty for open-ended
	Every       string `json:"every"`              // daily, weekly, monthly, yearly
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
}

type recurringResponse struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
	Every       string `json:"every"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
}

func toRecurringResponse(rt core.RecurringTransaction) recurringResponse {
	out := recurringResponse{
		ID:          rt.ID,
		Type:        string(rt.Type),
		StartDate:   rt.StartDate.Format("2006-01-02"),
		Every:       string(rt.Every),
		Description: rt.Description,
		AmountCents: rt.Amount.Cents,
		Category:    rt.Category,
	}
	if !rt.EndDate.IsZero() {
		out.EndDate = rt.EndDate.Format("2006-01-02")
	}
	return out
}

func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRecurring(w, r)
	case http.MethodGet:
		s.handleListRecurring(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid start_date, expected YYYY-MM-DD")
		return
	}

	var endDate time.Time
	if req.EndDate != "" {
		endDate, err = time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			errorJSON(w, http.StatusUnprocessableEntity, "invalid end_date, expected YYYY-MM-DD")
			return
		}
		if endDate.Before(startDate) {
			errorJSON(w, http.StatusUnprocessableEntity, "end_date before start_date")
			return
		}
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	rt := core.RecurringTransaction{
		UserID:      userID,
		Type:        core.TransactionType(req.Type),
		StartDate:   startDate,
		EndDate:     endDate,
		Every:       core.RepetitionType(req.Every),
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Category:    sanitizeInput(req.Category),
	}

	id, err := s.transactions.CreateRecurring(r.Context(), rt)
	if err != nil {
		if isValidationError(err) {
			errorJSON(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Recurring create error", "error", err, "user_id", userID)
		errorJSON(w, http.StatusInternalServerError, "failed to save recurring transaction")
		return
	}

	rt.ID = id
	respondJSON(w, http.StatusCreated, toRecurringResponse(rt))
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	items, err := s.transactions.ListRecurring(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Recurring list error", "error", err, "user_id", userID)
		errorJSON(w, http.StatusInternalServerError, "failed to list recurring transactions")
		return
	}

	out := make([]recurringResponse, 0, len(items))
	for _, rt := range items {
		out = append(out, toRecurringResponse(rt))
	}
	respondJSON(w, http.StatusOK, map[string]any{"recurring": out})
}

func (s *Server) handleRecurringByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := userIDFrom(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id, err := pathID(r.URL.Path, "/api/recurring")
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.transactions.DeleteRecurring(r.Context(), userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "recurring transaction not found")
			return
		}
		slog.ErrorContext(r.Context(), "Recurring delete error", "error", err, "id", id, "user_id", userID)
		errorJSON(w, http.StatusInternalServerError, "failed to delete recurring transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
