package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"risparmio/internal/amqp"
	"risparmio/internal/core"
)

// TextGenerator produces free-form text from a prompt. Satisfied by the
// Gemini client.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// InsightStore is the slice of the repository the insight worker needs.
type InsightStore interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetRanking(ctx context.Context, userID int64, month core.Month) (core.MonthlyRanking, error)
	UpsertInsight(ctx context.Context, in core.Insight) error
}

// InsightService turns ranking results into short natural-language
// summaries via a text generator.
type InsightService struct {
	store     InsightStore
	generator TextGenerator
	model     string
}

func NewInsightService(store InsightStore, generator TextGenerator, model string) *InsightService {
	return &InsightService{
		store:     store,
		generator: generator,
		model:     model,
	}
}

// HandleRequest processes one insight request message: load the user's
// ranking for the month, generate a summary and store it. Returning an
// error causes the message to be requeued.
func (s *InsightService) HandleRequest(ctx context.Context, msg amqp.InsightRequestMessage) error {
	month, err := core.ParseMonth(msg.Month)
	if err != nil {
		return fmt.Errorf("parse month %q: %w", msg.Month, err)
	}

	user, err := s.store.GetUser(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", msg.UserID, err)
	}

	ranking, err := s.store.GetRanking(ctx, msg.UserID, month)
	if err != nil {
		return fmt.Errorf("load ranking (user=%d, month=%s): %w", msg.UserID, month, err)
	}

	prompt := buildInsightPrompt(user, ranking)
	text, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate insight: %w", err)
	}

	insight := core.Insight{
		UserID:      msg.UserID,
		Month:       month,
		Text:        strings.TrimSpace(text),
		Model:       s.model,
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertInsight(ctx, insight); err != nil {
		return fmt.Errorf("save insight: %w", err)
	}

	slog.InfoContext(ctx, "Insight generated",
		"user_id", msg.UserID,
		"month", month.String(),
		"chars", len(insight.Text))

	return nil
}

// buildInsightPrompt lays out the month's numbers as plain facts and asks
// for a short, friendly summary.
func buildInsightPrompt(user core.User, r core.MonthlyRanking) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a personal finance assistant. Summarize the month below for the user in 2-3 friendly sentences. Be encouraging but factual. Do not invent numbers.\n\n")
	fmt.Fprintf(&b, "Month: %s\n", r.Month)
	fmt.Fprintf(&b, "Income: %s\n", core.FormatEuros(r.IncomeCents))
	fmt.Fprintf(&b, "Expenses: %s\n", core.FormatEuros(r.ExpenseCents))
	fmt.Fprintf(&b, "Savings rate: %.2f%%\n", r.SavingsRate)
	fmt.Fprintf(&b, "Leaderboard position: %d\n", r.Position)
	fmt.Fprintf(&b, "Consecutive positive months: %d\n", user.CurrentStreak)

	if len(r.Badges) > 0 {
		badges := make([]string, len(r.Badges))
		for i, badge := range r.Badges {
			badges[i] = string(badge)
		}
		fmt.Fprintf(&b, "Badges earned: %s\n", strings.Join(badges, ", "))
	}

	return b.String()
}
