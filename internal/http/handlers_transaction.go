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

type transactionRequest struct {
	Type        string `json:"type"`
	Date        string `json:"date"` // YYYY-MM-DD
	Description string `json:"description"`
	Amount      string `json:"amount"` // decimal, e.g. "12,50" or "12.50"
	Category    string `json:"category"`
	ReceiptID   string `json:"receipt_id,omitempty"`
}

type transactionResponse struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	ReceiptID   string `json:"receipt_id,omitempty"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Type:        string(t.Type),
		Date:        t.Date.Format("2006-01-02"),
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Category:    t.Category,
		ReceiptID:   t.ReceiptID,
	}
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTransaction(w, r)
	case http.MethodGet:
		s.handleListTransactions(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid date, expected YYYY-MM-DD")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	tx := core.Transaction{
		UserID:      userID,
		Type:        core.TransactionType(req.Type),
		Date:        date,
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Category:    sanitizeInput(req.Category),
		ReceiptID:   req.ReceiptID,
	}

	id, err := s.transactions.Create(r.Context(), tx)
	if err != nil {
		if isValidationError(err) {
			errorJSON(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Transaction create error", "error", err, "user_id", userID)
		errorJSON(w, http.StatusInternalServerError, "failed to save transaction")
		return
	}

	tx.ID = id
	respondJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
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
	page, perPage := parsePagination(r, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	items, err := s.transactions.List(r.Context(), userID, month, page, perPage)
	if err != nil {
		slog.ErrorContext(r.Context(), "Transaction list error", "error", err, "user_id", userID, "month", month.String())
		errorJSON(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	out := make([]transactionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toTransactionResponse(t))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"month":        month.String(),
		"page":         page,
		"per_page":     perPage,
		"transactions": out,
	})
}

func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
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

	id, err := pathID(r.URL.Path, "/api/transactions")
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.transactions.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "transaction not found")
			return
		}
		slog.ErrorContext(r.Context(), "Transaction delete error", "error", err, "id", id, "user_id", userID)
		errorJSON(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isValidationError reports whether err is one of the domain validation
// sentinels.
func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidAmount,
		core.ErrInvalidType,
		core.ErrEmptyDescription,
		core.ErrEmptyCategory,
		core.ErrZeroDate,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
