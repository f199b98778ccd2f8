package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"risparmio/internal/core"
)

// CreateRecurring inserts a recurring transaction template.
func (r *SQLiteRepository) CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (int64, error) {
	var endDate sql.NullString
	if !rt.EndDate.IsZero() {
		endDate = sql.NullString{String: rt.EndDate.UTC().Format(dateLayout), Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_transactions
		 (user_id, type, start_date, end_date, every, description, amount_cents, category)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.UserID, string(rt.Type), rt.StartDate.UTC().Format(dateLayout), endDate,
		string(rt.Every), rt.Description, rt.Amount.Cents, rt.Category)
	if err != nil {
		return 0, fmt.Errorf("create recurring transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create recurring transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Recurring transaction saved",
		"id", id,
		"user_id", rt.UserID,
		"every", rt.Every,
		"description", rt.Description)

	return id, nil
}

// ListRecurring returns the user's active recurring templates.
func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID int64) ([]core.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, start_date, end_date, every, description, amount_cents, category
		 FROM recurring_transactions
		 WHERE user_id = ? AND active = 1
		 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring transactions: %w", err)
	}
	defer rows.Close()
	return collectRecurring(rows)
}

// DeleteRecurring deactivates a template (owner-checked).
func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET active = 0
		 WHERE id = ? AND user_id = ? AND active = 1`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recurring transaction rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecurringWithExecution pairs a template with its last materialization time.
type RecurringWithExecution struct {
	core.RecurringTransaction
	LastExecution time.Time // zero when never executed
}

// GetActiveRecurring returns every active template whose start date is
// not in the future, with its last execution time.
func (r *SQLiteRepository) GetActiveRecurring(ctx context.Context, now time.Time) ([]RecurringWithExecution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, start_date, end_date, every, description, amount_cents, category, last_execution_date
		 FROM recurring_transactions
		 WHERE active = 1 AND start_date <= ?
		 ORDER BY id`, now.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("get active recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []RecurringWithExecution
	for rows.Next() {
		var (
			item     RecurringWithExecution
			lastExec sql.NullTime
		)
		rt, err := scanRecurringColumns(rows, &lastExec)
		if err != nil {
			return nil, err
		}
		item.RecurringTransaction = rt
		if lastExec.Valid {
			item.LastExecution = lastExec.Time
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring transactions: %w", err)
	}
	return out, nil
}

// UpdateRecurringLastExecution records when a template was last materialized.
func (r *SQLiteRepository) UpdateRecurringLastExecution(ctx context.Context, id int64, executedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET last_execution_date = ? WHERE id = ?`,
		executedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update recurring last execution: %w", err)
	}
	return nil
}

func collectRecurring(rows *sql.Rows) ([]core.RecurringTransaction, error) {
	var out []core.RecurringTransaction
	for rows.Next() {
		rt, err := scanRecurringColumns(rows, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring transactions: %w", err)
	}
	return out, nil
}

// scanRecurringColumns scans a recurring row. When lastExec is non-nil
// the query is expected to include the last_execution_date column.
func scanRecurringColumns(rows *sql.Rows, lastExec *sql.NullTime) (core.RecurringTransaction, error) {
	var (
		rt       core.RecurringTransaction
		typ      string
		startStr string
		endStr   sql.NullString
		every    string
	)

	dest := []any{&rt.ID, &rt.UserID, &typ, &startStr, &endStr, &every, &rt.Description, &rt.Amount.Cents, &rt.Category}
	if lastExec != nil {
		dest = append(dest, lastExec)
	}
	if err := rows.Scan(dest...); err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("scan recurring transaction: %w", err)
	}

	rt.Type = core.TransactionType(typ)
	rt.Every = core.RepetitionType(every)

	var err error
	rt.StartDate, err = time.Parse(dateLayout, startStr)
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("parse recurring start date %q: %w", startStr, err)
	}
	if endStr.Valid {
		rt.EndDate, err = time.Parse(dateLayout, endStr.String)
		if err != nil {
			return core.RecurringTransaction{}, fmt.Errorf("parse recurring end date %q: %w", endStr.String, err)
		}
	}
	return rt, nil
}
