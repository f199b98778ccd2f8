// Package google implements the leaderboard export port on Google Sheets.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"risparmio/internal/core"
	ports "risparmio/internal/export"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.LeaderboardWriter = (*Client)(nil)

// NewClient creates a Sheets client authenticated with a service account
// credentials file.
func NewClient(ctx context.Context, spreadsheetID, sheetName, credentialsFile string) (*Client, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if sheetName == "" {
		sheetName = "Leaderboard"
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsFile(credentialsFile),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// WriteLeaderboard clears the sheet and writes the month's leaderboard,
// header row included, ordered as given.
func (c *Client) WriteLeaderboard(ctx context.Context, month core.Month, rankings []core.MonthlyRanking) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:G", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", c.sheetName, err)
	}

	values := make([][]any, 0, len(rankings)+1)
	values = append(values, []any{"Month", "Position", "User ID", "Savings Rate %", "Income", "Expenses", "Badges"})
	for _, r := range rankings {
		values = append(values, []any{
			month.String(),
			r.Position,
			r.UserID,
			r.SavingsRate,
			core.FormatEuros(r.IncomeCents),
			core.FormatEuros(r.ExpenseCents),
			badgeList(r.Badges),
		})
	}

	writeRange := fmt.Sprintf("%s!A1:G%d", c.sheetName, len(values))
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write leaderboard to sheet %s: %w", c.sheetName, err)
	}

	slog.InfoContext(ctx, "Leaderboard exported",
		"month", month.String(),
		"rows", len(rankings),
		"sheet", c.sheetName)

	return nil
}

func badgeList(badges []core.Badge) string {
	out := ""
	for i, b := range badges {
		if i > 0 {
			out += ", "
		}
		out += string(b)
	}
	return out
}
