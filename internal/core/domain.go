package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Daily   RepetitionType = "daily"
	Weekly  RepetitionType = "weekly"
	Monthly RepetitionType = "monthly"
	Yearly  RepetitionType = "yearly"
)

type (
	TransactionType string

	RepetitionType string

	Money struct {
		Cents int64
	}

	// Transaction is an immutable financial record owned by a user.
	// Deletion is a soft-delete marker handled by storage.
	Transaction struct {
		ID          int64
		UserID      int64
		Type        TransactionType
		Date        time.Time
		Description string
		Amount      Money
		Category    string
		ReceiptID   string // optional, links an uploaded receipt
	}

	// RecurringTransaction is a template that the recurring worker
	// materializes into real transactions when due.
	RecurringTransaction struct {
		ID          int64
		UserID      int64
		Type        TransactionType
		StartDate   time.Time
		EndDate     time.Time // zero means open-ended
		Every       RepetitionType
		Description string
		Amount      Money
		Category    string
	}

	// User carries the running aggregates maintained by the ranking batch.
	User struct {
		ID            int64
		Username      string
		Active        bool
		CurrentStreak int
		TotalBadges   int
	}

	// Receipt is the stored metadata of an uploaded receipt file.
	Receipt struct {
		ID          string
		UserID      int64
		Filename    string
		ContentType string
		SizeBytes   int64
		StoredPath  string
		UploadedAt  time.Time
	}

	// Insight is an AI-generated monthly summary for a user.
	Insight struct {
		UserID      int64
		Month       Month
		Text        string
		Model       string
		GeneratedAt time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrInvalidMonth     = errors.New("invalid month")
)

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (rt RecurringTransaction) Validate() error {
	if rt.StartDate.IsZero() {
		return errors.New("invalid start date: " + ErrZeroDate.Error())
	}

	// End date, when set, must not precede the start date
	if !rt.EndDate.IsZero() && rt.EndDate.Before(rt.StartDate) {
		return errors.New("end date must be after start date")
	}

	switch rt.Every {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return errors.New("invalid repetition type")
	}

	if err := rt.Type.Validate(); err != nil {
		return err
	}

	if len(strings.TrimSpace(rt.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(rt.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}

	if err := rt.Amount.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(rt.Category) == "" {
		return ErrEmptyCategory
	}

	return nil
}
