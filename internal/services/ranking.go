package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"risparmio/internal/core"
	"risparmio/internal/export"
	"risparmio/internal/storage"
)

// topPreviewSize is how many leading entries the calculation result carries
// back to the caller.
const topPreviewSize = 10

// RankingStore is the slice of the repository the ranking batch needs.
type RankingStore interface {
	ListActiveUsers(ctx context.Context) ([]core.User, error)
	SumMonth(ctx context.Context, userID int64, month core.Month) (incomeCents, expenseCents int64, err error)
	GetRanking(ctx context.Context, userID int64, month core.Month) (core.MonthlyRanking, error)
	ListRankings(ctx context.Context, month core.Month, page, perPage int) ([]core.MonthlyRanking, error)
	UpsertRanking(ctx context.Context, mr core.MonthlyRanking) error
	UpsertSnapshot(ctx context.Context, s core.RankingSnapshot) error
	UpdateUserStats(ctx context.Context, userID int64, streak, newBadges int) error
}

// InsightPublisher requests asynchronous insight generation for a user.
type InsightPublisher interface {
	PublishInsightRequest(ctx context.Context, userID int64, month string) error
}

// CalculateResult summarizes one ranking run.
type CalculateResult struct {
	Month     core.Month
	Processed int
	Failed    int
	Top       []core.RankedEntry
}

// RankingService runs the monthly savings-rate ranking batch: aggregate,
// rank, evaluate badges and streaks, persist per user.
type RankingService struct {
	store     RankingStore
	publisher InsightPublisher
	exporter  export.LeaderboardWriter
}

// NewRankingService creates a ranking service. publisher and exporter may
// be nil, in which case no insight requests are emitted and no leaderboard
// export happens.
func NewRankingService(store RankingStore, publisher InsightPublisher, exporter export.LeaderboardWriter) *RankingService {
	return &RankingService{
		store:     store,
		publisher: publisher,
		exporter:  exporter,
	}
}

// Calculate runs the full ranking batch for month. Persistence is
// best-effort per user: a failure for one user is logged and counted,
// never aborts the run. Rerunning for the same month replaces the
// previous results rather than duplicating them.
func (s *RankingService) Calculate(ctx context.Context, month core.Month, now time.Time) (CalculateResult, error) {
	users, err := s.store.ListActiveUsers(ctx)
	if err != nil {
		return CalculateResult{}, fmt.Errorf("list active users: %w", err)
	}

	slog.InfoContext(ctx, "Starting ranking calculation",
		"month", month.String(),
		"active_users", len(users))

	result := CalculateResult{Month: month}

	entries := make([]core.RankEntry, 0, len(users))
	for _, u := range users {
		income, expense, err := s.store.SumMonth(ctx, u.ID, month)
		if err != nil {
			// A user we cannot aggregate cannot be ranked either;
			// leave them out of this run entirely.
			slog.ErrorContext(ctx, "Failed to aggregate user totals",
				"user_id", u.ID,
				"month", month.String(),
				"error", err)
			result.Failed++
			continue
		}
		entries = append(entries, core.RankEntry{
			UserID:       u.ID,
			IncomeCents:  income,
			ExpenseCents: expense,
		})
	}

	ranked := core.Rank(entries)

	streaks := make(map[int64]int, len(users))
	for _, u := range users {
		streaks[u.ID] = u.CurrentStreak
	}

	for _, entry := range ranked {
		if err := s.persistEntry(ctx, entry, month, now, streaks[entry.UserID]); err != nil {
			slog.ErrorContext(ctx, "Failed to persist ranking entry",
				"user_id", entry.UserID,
				"month", month.String(),
				"position", entry.Position,
				"error", err)
			result.Failed++
			continue
		}
		result.Processed++
	}

	if len(ranked) > topPreviewSize {
		result.Top = ranked[:topPreviewSize]
	} else {
		result.Top = ranked
	}

	slog.InfoContext(ctx, "Ranking calculation complete",
		"month", month.String(),
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped_aggregation", len(users)-len(ranked))

	if s.exporter != nil && result.Processed > 0 {
		if err := s.exportLeaderboard(ctx, month, result.Processed); err != nil {
			// Export is a best-effort mirror of already-persisted data.
			slog.WarnContext(ctx, "Failed to export leaderboard",
				"month", month.String(),
				"error", err)
		}
	}

	return result, nil
}

func (s *RankingService) exportLeaderboard(ctx context.Context, month core.Month, total int) error {
	rankings, err := s.store.ListRankings(ctx, month, 1, total)
	if err != nil {
		return fmt.Errorf("list rankings: %w", err)
	}
	return s.exporter.WriteLeaderboard(ctx, month, rankings)
}

// persistEntry writes the ranking row, the day snapshot and the user
// stats for one ranked user. Badge and streak state is derived from the
// previous month's row, if any.
func (s *RankingService) persistEntry(ctx context.Context, entry core.RankedEntry, month core.Month, now time.Time, currentStreak int) error {
	previous, hadPrior, err := s.previousRanking(ctx, entry.UserID, month)
	if err != nil {
		return fmt.Errorf("load previous ranking: %w", err)
	}

	// The row this run is about to replace, if the month was already
	// calculated once. Needed so reruns don't re-count the same badges.
	var sameMonth *core.MonthlyRanking
	if existing, err := s.store.GetRanking(ctx, entry.UserID, month); err == nil {
		sameMonth = &existing
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load current ranking: %w", err)
	}

	// The streak counts consecutive months, so it only advances the
	// first time a month is calculated; a rerun keeps the stored value.
	streak := currentStreak
	if sameMonth == nil {
		streak = core.NextStreak(hadPrior, entry.SavingsRate, currentStreak)
	}
	badges := core.EvaluateBadges(core.BadgeInput{
		Position:    entry.Position,
		SavingsRate: entry.SavingsRate,
		Streak:      streak,
		FirstMonth:  !hadPrior,
		Previous:    previous,
	})

	ranking := core.MonthlyRanking{
		UserID:       entry.UserID,
		Month:        month,
		Position:     entry.Position,
		SavingsRate:  entry.SavingsRate,
		IncomeCents:  entry.IncomeCents,
		ExpenseCents: entry.ExpenseCents,
		Badges:       badges,
		CalculatedAt: now,
	}

	if err := s.store.UpsertRanking(ctx, ranking); err != nil {
		return fmt.Errorf("upsert ranking: %w", err)
	}

	snapshot := core.RankingSnapshot{
		UserID:      entry.UserID,
		Month:       month,
		Day:         now.Day(),
		Position:    entry.Position,
		SavingsRate: entry.SavingsRate,
	}
	if err := s.store.UpsertSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	// On a rerun the badge total only grows by badges the replaced row
	// did not already hold; on the first run for the month every badge
	// counts.
	newBadges := core.NewBadgeCount(sameMonth, badges)

	if err := s.store.UpdateUserStats(ctx, entry.UserID, streak, newBadges); err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishInsightRequest(ctx, entry.UserID, month.String()); err != nil {
			// Insight generation is async and optional; the ranking
			// itself is already persisted.
			slog.WarnContext(ctx, "Failed to publish insight request",
				"user_id", entry.UserID,
				"month", month.String(),
				"error", err)
		}
	}

	return nil
}

// previousRanking loads the user's row for the month preceding month.
// hadPrior is false when the user has never been ranked before.
func (s *RankingService) previousRanking(ctx context.Context, userID int64, month core.Month) (*core.MonthlyRanking, bool, error) {
	prev, err := s.store.GetRanking(ctx, userID, month.Prev())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &prev, true, nil
}
