package core

import (
	"math"
	"sort"
	"time"
)

// Badge is an achievement tag recomputed from scratch on every ranking run.
// Badges are never stored as their own entity, only embedded in the
// monthly ranking row they were computed for.
type Badge string

const (
	BadgeTop1         Badge = "top-1"
	BadgeTop3         Badge = "top-3"
	BadgeTop10        Badge = "top-10"
	BadgeSaver50      Badge = "saver-50"
	BadgeSaver75      Badge = "saver-75"
	BadgeFirstMonth   Badge = "first-month"
	BadgeStreak3      Badge = "streak-3"
	BadgeStreak6      Badge = "streak-6"
	BadgeStreak12     Badge = "streak-12"
	BadgeMostImproved Badge = "most-improved"
)

// mostImprovedMinClimb is the minimum number of positions a user must
// climb versus the previous month to earn the most-improved badge.
const mostImprovedMinClimb = 3

type (
	// MonthlyRanking is the leaderboard row for one (user, month).
	// A given key has at most one live row; recomputation replaces it.
	MonthlyRanking struct {
		UserID       int64
		Month        Month
		Position     int
		SavingsRate  float64
		IncomeCents  int64
		ExpenseCents int64
		Badges       []Badge
		CalculatedAt time.Time
	}

	// RankingSnapshot captures position and rate at the moment of a
	// calculation run, keyed by day of month for intra-month trends.
	RankingSnapshot struct {
		UserID      int64
		Month       Month
		Day         int
		Position    int
		SavingsRate float64
	}

	// RankEntry is the aggregator output for one user and month.
	RankEntry struct {
		UserID       int64
		IncomeCents  int64
		ExpenseCents int64
	}

	// RankedEntry is a RankEntry with its computed rate and assigned position.
	RankedEntry struct {
		RankEntry
		SavingsRate float64
		Position    int
	}

	// BadgeInput is everything the badge rule table looks at.
	BadgeInput struct {
		Position    int
		SavingsRate float64
		Streak      int
		FirstMonth  bool
		Previous    *MonthlyRanking // previous month's row, nil on first-ever month
	}
)

// SavingsRate computes (income - expenses) / income * 100, rounded to two
// decimals. A user with no income has a rate of 0, never NaN or an
// infinity. The rate may be negative when expenses exceed income.
func SavingsRate(incomeCents, expenseCents int64) float64 {
	if incomeCents <= 0 {
		return 0
	}
	rate := float64(incomeCents-expenseCents) / float64(incomeCents) * 100
	return math.Round(rate*100) / 100
}

// Rank sorts the entries descending by savings rate and assigns dense
// 1-based positions. Ties are broken by ascending user ID, so repeated
// runs over the same data always produce identical positions.
// For N entries the positions are exactly {1, ..., N}.
func Rank(entries []RankEntry) []RankedEntry {
	ranked := make([]RankedEntry, len(entries))
	for i, e := range entries {
		ranked[i] = RankedEntry{
			RankEntry:   e,
			SavingsRate: SavingsRate(e.IncomeCents, e.ExpenseCents),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].SavingsRate != ranked[j].SavingsRate {
			return ranked[i].SavingsRate > ranked[j].SavingsRate
		}
		return ranked[i].UserID < ranked[j].UserID
	})

	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}

// NextStreak derives the new consecutive-positive-months counter.
// With a prior ranking the streak increments on a positive rate and
// resets to zero otherwise. Without one, a positive rate starts the
// streak at 1.
func NextStreak(hadPrior bool, rate float64, current int) int {
	if rate <= 0 {
		return 0
	}
	if !hadPrior {
		return 1
	}
	return current + 1
}

// EvaluateBadges applies the fixed badge rule table. Only the highest
// tier of each family is awarded. The first-month badge is granted on a
// user's first-ever ranked month regardless of rate.
func EvaluateBadges(in BadgeInput) []Badge {
	var badges []Badge

	switch {
	case in.Position == 1:
		badges = append(badges, BadgeTop1)
	case in.Position <= 3:
		badges = append(badges, BadgeTop3)
	case in.Position <= 10:
		badges = append(badges, BadgeTop10)
	}

	switch {
	case in.SavingsRate >= 75:
		badges = append(badges, BadgeSaver75)
	case in.SavingsRate >= 50:
		badges = append(badges, BadgeSaver50)
	}

	if in.FirstMonth {
		badges = append(badges, BadgeFirstMonth)
	}

	switch {
	case in.Streak >= 12:
		badges = append(badges, BadgeStreak12)
	case in.Streak >= 6:
		badges = append(badges, BadgeStreak6)
	case in.Streak >= 3:
		badges = append(badges, BadgeStreak3)
	}

	if in.Previous != nil && in.Previous.Position-in.Position >= mostImprovedMinClimb {
		badges = append(badges, BadgeMostImproved)
	}

	return badges
}

// HasBadge reports whether b is present in the ranking's badge set.
func (r MonthlyRanking) HasBadge(b Badge) bool {
	for _, have := range r.Badges {
		if have == b {
			return true
		}
	}
	return false
}

// NewBadgeCount returns how many of the given badges were not already
// present on prev. It feeds the running total_badges counter on the
// user account. A nil prev counts every badge as new.
func NewBadgeCount(prev *MonthlyRanking, badges []Badge) int {
	if prev == nil {
		return len(badges)
	}
	n := 0
	for _, b := range badges {
		if !prev.HasBadge(b) {
			n++
		}
	}
	return n
}
