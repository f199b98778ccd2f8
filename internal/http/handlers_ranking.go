package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

type rankingEntryResponse struct {
	Position     int      `json:"position"`
	UserID       int64    `json:"user_id"`
	SavingsRate  float64  `json:"savings_rate"`
	IncomeCents  int64    `json:"income_cents"`
	ExpenseCents int64    `json:"expense_cents"`
	Badges       []string `json:"badges"`
}

type leaderboardResponse struct {
	Month    string                 `json:"month"`
	Page     int                    `json:"page"`
	PerPage  int                    `json:"per_page"`
	Total    int                    `json:"total"`
	Rankings []rankingEntryResponse `json:"rankings"`
}

func toRankingEntry(r core.MonthlyRanking) rankingEntryResponse {
	badges := make([]string, 0, len(r.Badges))
	for _, b := range r.Badges {
		badges = append(badges, string(b))
	}
	return rankingEntryResponse{
		Position:     r.Position,
		UserID:       r.UserID,
		SavingsRate:  r.SavingsRate,
		IncomeCents:  r.IncomeCents,
		ExpenseCents: r.ExpenseCents,
		Badges:       badges,
	}
}

type calculateRequest struct {
	Month string `json:"month"` // YYYY-MM, empty for the current month
}

// handleCalculate triggers the ranking batch. An external scheduler
// calls this periodically; recalculating the current month as it
// progresses is what builds the intra-month snapshot trend.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	month := core.CurrentMonth(now)

	// The month can come in the body or as a query parameter; absent
	// both, it is the running month.
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Month == "" {
		req.Month = r.URL.Query().Get("month")
	}
	if req.Month != "" {
		parsed, err := core.ParseMonth(req.Month)
		if err != nil {
			errorJSON(w, http.StatusUnprocessableEntity, "invalid month, expected YYYY-MM")
			return
		}
		month = parsed
	}

	result, err := s.calculator.Calculate(r.Context(), month, now)
	if err != nil {
		slog.ErrorContext(r.Context(), "Ranking calculation error", "error", err, "month", month.String())
		errorJSON(w, http.StatusInternalServerError, "ranking calculation failed")
		return
	}

	// Cached leaderboard pages for the month are now stale.
	s.leaderboardCache.DeletePrefix(month.String())

	top := make([]rankingEntryResponse, 0, len(result.Top))
	for _, e := range result.Top {
		top = append(top, rankingEntryResponse{
			Position:     e.Position,
			UserID:       e.UserID,
			SavingsRate:  e.SavingsRate,
			IncomeCents:  e.IncomeCents,
			ExpenseCents: e.ExpenseCents,
			Badges:       []string{},
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"month":     result.Month.String(),
		"processed": result.Processed,
		"failed":    result.Failed,
		"top":       top,
	})
}

// handleLeaderboard returns one page of the month's leaderboard, served
// from cache between calculation runs.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	month, err := parseMonthParam(r, time.Now())
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, "invalid month, expected YYYY-MM")
		return
	}

	if username := sanitizeInput(r.URL.Query().Get("username")); username != "" {
		s.handleLeaderboardLookup(w, r, month, username)
		return
	}

	page, perPage := parsePagination(r, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	key := fmt.Sprintf("%s:%d:%d", month.String(), page, perPage)
	if cached, found := s.leaderboardCache.Get(key); found {
		slog.DebugContext(r.Context(), "Leaderboard cache hit", "month", month.String(), "page", page)
		respondJSON(w, http.StatusOK, cached)
		return
	}

	rankings, err := s.store.ListRankings(r.Context(), month, page, perPage)
	if err != nil {
		slog.ErrorContext(r.Context(), "Leaderboard list error", "error", err, "month", month.String())
		errorJSON(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	total, err := s.store.CountRankings(r.Context(), month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Leaderboard count error", "error", err, "month", month.String())
		errorJSON(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	resp := leaderboardResponse{
		Month:    month.String(),
		Page:     page,
		PerPage:  perPage,
		Total:    total,
		Rankings: make([]rankingEntryResponse, 0, len(rankings)),
	}
	for _, rk := range rankings {
		resp.Rankings = append(resp.Rankings, toRankingEntry(rk))
	}

	s.leaderboardCache.Set(key, resp)
	respondJSON(w, http.StatusOK, resp)
}

// handleLeaderboardLookup resolves a username to their ranking row for
// the month.
func (s *Server) handleLeaderboardLookup(w http.ResponseWriter, r *http.Request, month core.Month, username string) {
	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "user not found")
			return
		}
		slog.ErrorContext(r.Context(), "User lookup error", "error", err, "username", username)
		errorJSON(w, http.StatusInternalServerError, "failed to look up user")
		return
	}

	ranking, err := s.store.GetRanking(r.Context(), user.ID, month)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "no ranking for this month")
			return
		}
		slog.ErrorContext(r.Context(), "Ranking load error", "error", err, "user_id", user.ID, "month", month.String())
		errorJSON(w, http.StatusInternalServerError, "failed to load ranking")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"month":    month.String(),
		"username": user.Username,
		"ranking":  toRankingEntry(ranking),
	})
}

// handleMyRanking returns the caller's ranking row for a month, plus the
// running user aggregates.
func (s *Server) handleMyRanking(w http.ResponseWriter, r *http.Request) {
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

	ranking, err := s.store.GetRanking(r.Context(), userID, month)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "no ranking for this month")
			return
		}
		slog.ErrorContext(r.Context(), "Ranking load error", "error", err, "user_id", userID, "month", month.String())
		errorJSON(w, http.StatusInternalServerError, "failed to load ranking")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "User load error", "error", err, "user_id", userID)
		errorJSON(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"month":          month.String(),
		"ranking":        toRankingEntry(ranking),
		"current_streak": user.CurrentStreak,
		"total_badges":   user.TotalBadges,
	})
}

// handleRankingHistory returns the caller's intra-month snapshots.
func (s *Server) handleRankingHistory(w http.ResponseWriter, r *http.Request) {
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

	snapshots, err := s.store.ListSnapshots(r.Context(), userID, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Snapshot list error", "error", err, "user_id", userID, "month", month.String())
		errorJSON(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	type snapshotResponse struct {
		Day         int     `json:"day"`
		Position    int     `json:"position"`
		SavingsRate float64 `json:"savings_rate"`
	}
	out := make([]snapshotResponse, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, snapshotResponse{
			Day:         snap.Day,
			Position:    snap.Position,
			SavingsRate: snap.SavingsRate,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"month":     month.String(),
		"snapshots": out,
	})
}
