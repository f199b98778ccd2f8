package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"risparmio/internal/core"
)

// CreateReceipt stores the metadata of an uploaded receipt file.
func (r *SQLiteRepository) CreateReceipt(ctx context.Context, rec core.Receipt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO receipts (id, user_id, filename, content_type, size_bytes, stored_path, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Filename, rec.ContentType, rec.SizeBytes, rec.StoredPath, rec.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	return nil
}

// GetReceipt returns receipt metadata, owner-checked.
func (r *SQLiteRepository) GetReceipt(ctx context.Context, userID int64, id string) (core.Receipt, error) {
	var rec core.Receipt
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, filename, content_type, size_bytes, stored_path, uploaded_at
		 FROM receipts WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&rec.ID, &rec.UserID, &rec.Filename, &rec.ContentType, &rec.SizeBytes, &rec.StoredPath, &rec.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Receipt{}, ErrNotFound
	}
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	return rec, nil
}

// UpsertInsight writes the AI insight for (user, month), replacing any
// previous generation.
func (r *SQLiteRepository) UpsertInsight(ctx context.Context, in core.Insight) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO insights (user_id, month, text, model, generated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, month) DO UPDATE SET
			text = excluded.text,
			model = excluded.model,
			generated_at = excluded.generated_at`,
		in.UserID, in.Month.String(), in.Text, in.Model, in.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert insight (user=%d, month=%s): %w", in.UserID, in.Month, err)
	}
	return nil
}

// GetInsight returns the user's insight for a month, or ErrNotFound.
func (r *SQLiteRepository) GetInsight(ctx context.Context, userID int64, month core.Month) (core.Insight, error) {
	var (
		in       core.Insight
		monthStr string
		genAt    time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, month, text, model, generated_at
		 FROM insights WHERE user_id = ? AND month = ?`, userID, month.String()).
		Scan(&in.UserID, &monthStr, &in.Text, &in.Model, &genAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Insight{}, ErrNotFound
	}
	if err != nil {
		return core.Insight{}, fmt.Errorf("get insight: %w", err)
	}

	in.Month, err = core.ParseMonth(monthStr)
	if err != nil {
		return core.Insight{}, fmt.Errorf("parse insight month %q: %w", monthStr, err)
	}
	in.GeneratedAt = genAt
	return in, nil
}
