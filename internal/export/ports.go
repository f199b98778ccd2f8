// Package export defines outbound ports for publishing leaderboard data.
package export

import (
	"context"

	"risparmio/internal/core"
)

// LeaderboardWriter publishes a month's full leaderboard to an external
// destination, replacing whatever was previously published for it.
type LeaderboardWriter interface {
	WriteLeaderboard(ctx context.Context, month core.Month, rankings []core.MonthlyRanking) error
}
