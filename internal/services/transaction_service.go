// Package services holds the orchestration layer between HTTP handlers,
// workers and storage.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

// TransactionService validates and persists transactions and recurring
// templates.
type TransactionService struct {
	storage *storage.SQLiteRepository
}

func NewTransactionService(storage *storage.SQLiteRepository) *TransactionService {
	return &TransactionService{storage: storage}
}

// Create validates and stores a transaction, returning its ID.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.CreateTransaction(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("save transaction: %w", err)
	}
	return id, nil
}

// Delete soft-deletes the user's transaction. Already-deleted or foreign
// transactions surface as storage.ErrNotFound.
func (s *TransactionService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.storage.SoftDeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction soft-deleted", "id", id, "user_id", userID)
	return nil
}

// List returns one page of the user's live transactions for a month.
func (s *TransactionService) List(ctx context.Context, userID int64, month core.Month, page, perPage int) ([]core.Transaction, error) {
	return s.storage.ListTransactions(ctx, userID, month, page, perPage)
}

// CreateRecurring validates and stores a recurring template.
func (s *TransactionService) CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (int64, error) {
	if err := rt.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.CreateRecurring(ctx, rt)
	if err != nil {
		return 0, fmt.Errorf("save recurring transaction: %w", err)
	}
	return id, nil
}

// ListRecurring returns the user's active recurring templates.
func (s *TransactionService) ListRecurring(ctx context.Context, userID int64) ([]core.RecurringTransaction, error) {
	return s.storage.ListRecurring(ctx, userID)
}

// DeleteRecurring deactivates the user's template.
func (s *TransactionService) DeleteRecurring(ctx context.Context, userID, id int64) error {
	return s.storage.DeleteRecurring(ctx, userID, id)
}
