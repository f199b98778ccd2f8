package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

// RecurringProcessor materializes due recurring templates into real
// transactions.
type RecurringProcessor struct {
	storage      *storage.SQLiteRepository
	transactions *TransactionService
}

func NewRecurringProcessor(storage *storage.SQLiteRepository, transactions *TransactionService) *RecurringProcessor {
	return &RecurringProcessor{
		storage:      storage,
		transactions: transactions,
	}
}

// ProcessDue checks every active recurring template and creates a
// transaction for each one that is due at now. A failure on one template
// is logged and skipped; the count of created transactions is returned.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.transactions == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.storage.GetActiveRecurring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("get active recurring transactions: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"total_active", len(templates),
		"processing_date", now.Format("2006-01-02"))

	created := 0
	for _, tpl := range templates {
		due, err := isDue(tpl, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check if template is due",
				"id", tpl.ID,
				"error", err)
			continue
		}
		if !due {
			continue
		}

		tx := core.Transaction{
			UserID:      tpl.UserID,
			Type:        tpl.Type,
			Date:        now,
			Description: tpl.Description,
			Amount:      tpl.Amount,
			Category:    tpl.Category,
		}

		if _, err := p.transactions.Create(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to create transaction from template",
				"template_id", tpl.ID,
				"description", tpl.Description,
				"error", err)
			continue
		}

		if err := p.storage.UpdateRecurringLastExecution(ctx, tpl.ID, now); err != nil {
			slog.ErrorContext(ctx, "Failed to update last execution date",
				"template_id", tpl.ID,
				"error", err)
			// Continue anyway - the transaction was created.
		}

		created++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"template_id", tpl.ID,
			"description", tpl.Description,
			"amount_cents", tpl.Amount.Cents,
			"frequency", tpl.Every)
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"created", created,
		"total_checked", len(templates))

	return created, nil
}

// isDue decides whether a template should fire at now, based on its
// frequency, last execution and optional end date.
func isDue(tpl storage.RecurringWithExecution, now time.Time) (bool, error) {
	if !tpl.EndDate.IsZero() && now.After(endOfDay(tpl.EndDate)) {
		return false, nil
	}

	switch tpl.Every {
	case core.Daily:
		return isDueDaily(tpl.LastExecution, now), nil
	case core.Weekly:
		return isDueWeekly(tpl.LastExecution, now), nil
	case core.Monthly:
		return isDueMonthly(tpl.LastExecution, now, tpl.StartDate.Day()), nil
	case core.Yearly:
		return isDueYearly(tpl.LastExecution, now, int(tpl.StartDate.Month()), tpl.StartDate.Day()), nil
	default:
		return false, fmt.Errorf("unknown repetition type: %s", tpl.Every)
	}
}

func isDueDaily(lastExecution, now time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	return lastExecution.Format("2006-01-02") != now.Format("2006-01-02")
}

func isDueWeekly(lastExecution, now time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	return now.Sub(lastExecution).Hours()/24 >= 7
}

func isDueMonthly(lastExecution, now time.Time, targetDay int) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() && lastExecution.Month() == now.Month() {
		return false
	}
	return now.Day() >= clampToMonth(targetDay, now)
}

func isDueYearly(lastExecution, now time.Time, targetMonth, targetDay int) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() {
		return false
	}
	if int(now.Month()) < targetMonth {
		return false
	}
	if int(now.Month()) == targetMonth {
		return now.Day() >= clampToMonth(targetDay, now)
	}
	return true
}

// clampToMonth pulls a target day back to the last day of now's month
// when the month is too short (e.g. the 31st in February).
func clampToMonth(targetDay int, now time.Time) int {
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if targetDay > lastDay {
		return lastDay
	}
	return targetDay
}

func endOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
}
