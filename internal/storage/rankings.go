package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"risparmio/internal/core"
)

// UpsertRanking writes the leaderboard row for (user, month), replacing
// any existing row. Recomputation is idempotent by replacement, never
// accumulation.
func (r *SQLiteRepository) UpsertRanking(ctx context.Context, mr core.MonthlyRanking) error {
	badges, err := json.Marshal(badgeStrings(mr.Badges))
	if err != nil {
		return fmt.Errorf("marshal badges: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO monthly_rankings
		 (user_id, month, position, savings_rate, income_cents, expense_cents, badges, calculated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, month) DO UPDATE SET
			position = excluded.position,
			savings_rate = excluded.savings_rate,
			income_cents = excluded.income_cents,
			expense_cents = excluded.expense_cents,
			badges = excluded.badges,
			calculated_at = excluded.calculated_at`,
		mr.UserID, mr.Month.String(), mr.Position, mr.SavingsRate,
		mr.IncomeCents, mr.ExpenseCents, string(badges), mr.CalculatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert ranking (user=%d, month=%s): %w", mr.UserID, mr.Month, err)
	}

	slog.DebugContext(ctx, "Ranking upserted",
		"user_id", mr.UserID,
		"month", mr.Month.String(),
		"position", mr.Position,
		"savings_rate", mr.SavingsRate)

	return nil
}

// GetRanking returns the ranking row for (user, month), or ErrNotFound.
func (r *SQLiteRepository) GetRanking(ctx context.Context, userID int64, month core.Month) (core.MonthlyRanking, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, month, position, savings_rate, income_cents, expense_cents, badges, calculated_at
		 FROM monthly_rankings WHERE user_id = ? AND month = ?`,
		userID, month.String())
	return scanRanking(row)
}

// ListRankings returns the month's leaderboard ordered by position,
// paginated with a 1-based page number.
func (r *SQLiteRepository) ListRankings(ctx context.Context, month core.Month, page, perPage int) ([]core.MonthlyRanking, error) {
	offset := (page - 1) * perPage
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, month, position, savings_rate, income_cents, expense_cents, badges, calculated_at
		 FROM monthly_rankings
		 WHERE month = ?
		 ORDER BY position
		 LIMIT ? OFFSET ?`,
		month.String(), perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("list rankings: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyRanking
	for rows.Next() {
		mr, err := scanRanking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rankings: %w", err)
	}
	return out, nil
}

// CountRankings returns the number of ranked users for a month.
func (r *SQLiteRepository) CountRankings(ctx context.Context, month core.Month) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monthly_rankings WHERE month = ?`, month.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rankings: %w", err)
	}
	return n, nil
}

// UpsertSnapshot writes the intra-month trend row for (user, month, day).
// A second calculation run on the same day overwrites that day's row;
// runs on later days append.
func (r *SQLiteRepository) UpsertSnapshot(ctx context.Context, s core.RankingSnapshot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ranking_snapshots (user_id, month, day, position, savings_rate)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, month, day) DO UPDATE SET
			position = excluded.position,
			savings_rate = excluded.savings_rate,
			created_at = CURRENT_TIMESTAMP`,
		s.UserID, s.Month.String(), s.Day, s.Position, s.SavingsRate)
	if err != nil {
		return fmt.Errorf("upsert snapshot (user=%d, month=%s, day=%d): %w", s.UserID, s.Month, s.Day, err)
	}
	return nil
}

// ListSnapshots returns the user's snapshots for a month, day ascending.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context, userID int64, month core.Month) ([]core.RankingSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, month, day, position, savings_rate
		 FROM ranking_snapshots
		 WHERE user_id = ? AND month = ?
		 ORDER BY day`, userID, month.String())
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.RankingSnapshot
	for rows.Next() {
		var (
			s        core.RankingSnapshot
			monthStr string
		)
		if err := rows.Scan(&s.UserID, &monthStr, &s.Day, &s.Position, &s.SavingsRate); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Month, err = core.ParseMonth(monthStr)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot month %q: %w", monthStr, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

func scanRanking(row rowScanner) (core.MonthlyRanking, error) {
	var (
		mr        core.MonthlyRanking
		monthStr  string
		badgesStr string
		calcAt    time.Time
	)
	err := row.Scan(&mr.UserID, &monthStr, &mr.Position, &mr.SavingsRate,
		&mr.IncomeCents, &mr.ExpenseCents, &badgesStr, &calcAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyRanking{}, ErrNotFound
	}
	if err != nil {
		return core.MonthlyRanking{}, fmt.Errorf("scan ranking: %w", err)
	}

	mr.Month, err = core.ParseMonth(monthStr)
	if err != nil {
		return core.MonthlyRanking{}, fmt.Errorf("parse ranking month %q: %w", monthStr, err)
	}

	var tags []string
	if err := json.Unmarshal([]byte(badgesStr), &tags); err != nil {
		return core.MonthlyRanking{}, fmt.Errorf("unmarshal badges %q: %w", badgesStr, err)
	}
	for _, tag := range tags {
		mr.Badges = append(mr.Badges, core.Badge(tag))
	}
	mr.CalculatedAt = calcAt
	return mr, nil
}

func badgeStrings(badges []core.Badge) []string {
	out := make([]string, len(badges))
	for i, b := range badges {
		out[i] = string(b)
	}
	return out
}
