package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"risparmio/internal/core"
)

// CreateTransaction inserts a transaction and returns its ID.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	var receiptID sql.NullString
	if t.ReceiptID != "" {
		receiptID = sql.NullString{String: t.ReceiptID, Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, date, description, amount_cents, category, receipt_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, string(t.Type), t.Date.UTC().Format(dateLayout),
		t.Description, t.Amount.Cents, t.Category, receiptID)
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"user_id", t.UserID,
		"type", t.Type,
		"description", t.Description,
		"amount_cents", t.Amount.Cents)

	return id, nil
}

// SoftDeleteTransaction marks a transaction as deleted without removing
// the row. Returns ErrNotFound when the row does not exist, is owned by
// another user, or is already deleted.
func (r *SQLiteRepository) SoftDeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("soft delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete transaction rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction soft-deleted", "id", id, "user_id", userID)
	return nil
}

// ListTransactions returns the user's non-deleted transactions for a
// month, newest first, paginated with a 1-based page number.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64, month core.Month, page, perPage int) ([]core.Transaction, error) {
	start, end := month.Bounds()
	offset := (page - 1) * perPage

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, date, description, amount_cents, category, receipt_id
		 FROM transactions
		 WHERE user_id = ? AND deleted_at IS NULL AND date >= ? AND date < ?
		 ORDER BY date DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, start.Format(dateLayout), end.Format(dateLayout), perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// SumMonth sums the user's non-deleted transactions within the month,
// partitioned by type. Both totals default to zero when no transactions
// exist.
func (r *SQLiteRepository) SumMonth(ctx context.Context, userID int64, month core.Month) (incomeCents, expenseCents int64, err error) {
	start, end := month.Bounds()

	err = r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions
		 WHERE user_id = ? AND deleted_at IS NULL AND date >= ? AND date < ?`,
		userID, start.Format(dateLayout), end.Format(dateLayout)).
		Scan(&incomeCents, &expenseCents)
	if err != nil {
		return 0, 0, fmt.Errorf("sum month (user=%d, month=%s): %w", userID, month, err)
	}
	return incomeCents, expenseCents, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t         core.Transaction
		typ       string
		dateStr   string
		receiptID sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &typ, &dateStr, &t.Description, &t.Amount.Cents, &t.Category, &receiptID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	t.Type = core.TransactionType(typ)
	t.Date, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", dateStr, err)
	}
	if receiptID.Valid {
		t.ReceiptID = receiptID.String
	}
	return t, nil
}
