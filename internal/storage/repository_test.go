package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"risparmio/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustCreateUser(t *testing.T, repo *SQLiteRepository, username string) int64 {
	t.Helper()
	id, err := repo.CreateUser(context.Background(), username)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return id
}

func TestSumMonthExcludesDeletedAndOtherMonths(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := mustCreateUser(t, repo, "alice")

	add := func(typ core.TransactionType, day int, cents int64) int64 {
		id, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID:      uid,
			Type:        typ,
			Date:        time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC),
			Description: "t",
			Amount:      core.Money{Cents: cents},
			Category:    "General",
		})
		if err != nil {
			t.Fatalf("create transaction: %v", err)
		}
		return id
	}

	add(core.Income, 1, 300000)
	add(core.Expense, 10, 120000)
	deleted := add(core.Expense, 12, 50000)
	if err := repo.SoftDeleteTransaction(ctx, uid, deleted); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	// Outside the month boundary
	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: uid, Type: core.Expense,
		Date:        time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Description: "next month", Amount: core.Money{Cents: 99999}, Category: "General",
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	income, expense, err := repo.SumMonth(ctx, uid, core.Month{Year: 2025, Mon: time.June})
	if err != nil {
		t.Fatalf("sum month: %v", err)
	}
	if income != 300000 || expense != 120000 {
		t.Fatalf("sum month = %d/%d, want 300000/120000", income, expense)
	}
}

func TestSumMonthEmpty(t *testing.T) {
	repo := newTestRepo(t)
	uid := mustCreateUser(t, repo, "bob")

	income, expense, err := repo.SumMonth(context.Background(), uid, core.Month{Year: 2025, Mon: time.January})
	if err != nil {
		t.Fatalf("sum month: %v", err)
	}
	if income != 0 || expense != 0 {
		t.Fatalf("empty month must sum to 0/0, got %d/%d", income, expense)
	}
}

func TestSoftDeleteOwnerChecked(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	owner := mustCreateUser(t, repo, "owner")
	other := mustCreateUser(t, repo, "other")

	id, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: owner, Type: core.Expense,
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Description: "t", Amount: core.Money{Cents: 100}, Category: "General",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if err := repo.SoftDeleteTransaction(ctx, other, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := repo.SoftDeleteTransaction(ctx, owner, id); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := repo.SoftDeleteTransaction(ctx, owner, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestUpsertRankingReplaces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := mustCreateUser(t, repo, "carol")
	month := core.Month{Year: 2025, Mon: time.June}

	first := core.MonthlyRanking{
		UserID: uid, Month: month, Position: 3, SavingsRate: 25.5,
		IncomeCents: 100000, ExpenseCents: 74500,
		Badges:       []core.Badge{core.BadgeTop3},
		CalculatedAt: time.Now(),
	}
	if err := repo.UpsertRanking(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := first
	second.Position = 1
	second.Badges = []core.Badge{core.BadgeTop1, core.BadgeFirstMonth}
	if err := repo.UpsertRanking(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.GetRanking(ctx, uid, month)
	if err != nil {
		t.Fatalf("get ranking: %v", err)
	}
	if got.Position != 1 || len(got.Badges) != 2 {
		t.Fatalf("upsert did not replace: %+v", got)
	}

	n, err := repo.CountRankings(ctx, month)
	if err != nil {
		t.Fatalf("count rankings: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one live row per (user, month), got %d", n)
	}
}

func TestListRankingsOrderedByPosition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	month := core.Month{Year: 2025, Mon: time.June}

	for i, name := range []string{"u1", "u2", "u3"} {
		uid := mustCreateUser(t, repo, name)
		if err := repo.UpsertRanking(ctx, core.MonthlyRanking{
			UserID: uid, Month: month, Position: 3 - i, SavingsRate: float64(10 * (i + 1)),
			CalculatedAt: time.Now(),
		}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	rankings, err := repo.ListRankings(ctx, month, 1, 10)
	if err != nil {
		t.Fatalf("list rankings: %v", err)
	}
	if len(rankings) != 3 {
		t.Fatalf("expected 3 rankings, got %d", len(rankings))
	}
	for i, mr := range rankings {
		if mr.Position != i+1 {
			t.Fatalf("rankings not ordered by position: %+v", rankings)
		}
	}

	page2, err := repo.ListRankings(ctx, month, 2, 2)
	if err != nil {
		t.Fatalf("list rankings page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].Position != 3 {
		t.Fatalf("pagination broken: %+v", page2)
	}
}

func TestUpsertSnapshotSameDayOverwrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := mustCreateUser(t, repo, "dave")
	month := core.Month{Year: 2025, Mon: time.June}

	if err := repo.UpsertSnapshot(ctx, core.RankingSnapshot{UserID: uid, Month: month, Day: 10, Position: 5, SavingsRate: 20}); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if err := repo.UpsertSnapshot(ctx, core.RankingSnapshot{UserID: uid, Month: month, Day: 10, Position: 2, SavingsRate: 35}); err != nil {
		t.Fatalf("same-day snapshot: %v", err)
	}
	if err := repo.UpsertSnapshot(ctx, core.RankingSnapshot{UserID: uid, Month: month, Day: 15, Position: 1, SavingsRate: 40}); err != nil {
		t.Fatalf("later-day snapshot: %v", err)
	}

	snaps, err := repo.ListSnapshots(ctx, uid, month)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots (same day overwritten), got %d", len(snaps))
	}
	if snaps[0].Day != 10 || snaps[0].Position != 2 {
		t.Fatalf("same-day snapshot not overwritten: %+v", snaps[0])
	}
	if snaps[1].Day != 15 || snaps[1].Position != 1 {
		t.Fatalf("later-day snapshot missing: %+v", snaps[1])
	}
}

func TestUpdateUserStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := mustCreateUser(t, repo, "erin")

	if err := repo.UpdateUserStats(ctx, uid, 3, 2); err != nil {
		t.Fatalf("update stats: %v", err)
	}
	if err := repo.UpdateUserStats(ctx, uid, 4, 1); err != nil {
		t.Fatalf("update stats: %v", err)
	}

	u, err := repo.GetUser(ctx, uid)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.CurrentStreak != 4 {
		t.Fatalf("streak = %d, want 4 (set, not accumulated)", u.CurrentStreak)
	}
	if u.TotalBadges != 3 {
		t.Fatalf("total badges = %d, want 3 (accumulated)", u.TotalBadges)
	}
}

func TestInsightUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := mustCreateUser(t, repo, "frank")
	month := core.Month{Year: 2025, Mon: time.June}

	if err := repo.UpsertInsight(ctx, core.Insight{UserID: uid, Month: month, Text: "first", Model: "m", GeneratedAt: time.Now()}); err != nil {
		t.Fatalf("upsert insight: %v", err)
	}
	if err := repo.UpsertInsight(ctx, core.Insight{UserID: uid, Month: month, Text: "second", Model: "m", GeneratedAt: time.Now()}); err != nil {
		t.Fatalf("upsert insight again: %v", err)
	}

	in, err := repo.GetInsight(ctx, uid, month)
	if err != nil {
		t.Fatalf("get insight: %v", err)
	}
	if in.Text != "second" {
		t.Fatalf("insight not replaced: %q", in.Text)
	}
}

func TestRecurringLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := mustCreateUser(t, repo, "gina")

	id, err := repo.CreateRecurring(ctx, core.RecurringTransaction{
		UserID: uid, Type: core.Expense,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Every:     core.Monthly, Description: "rent",
		Amount: core.Money{Cents: 90000}, Category: "Housing",
	})
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}

	active, err := repo.GetActiveRecurring(ctx, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("get active recurring: %v", err)
	}
	if len(active) != 1 || active[0].ID != id || !active[0].LastExecution.IsZero() {
		t.Fatalf("active recurring = %+v", active)
	}

	execAt := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	if err := repo.UpdateRecurringLastExecution(ctx, id, execAt); err != nil {
		t.Fatalf("update last execution: %v", err)
	}
	active, err = repo.GetActiveRecurring(ctx, execAt)
	if err != nil {
		t.Fatalf("get active recurring: %v", err)
	}
	if active[0].LastExecution.IsZero() {
		t.Fatalf("last execution not recorded")
	}

	if err := repo.DeleteRecurring(ctx, uid, id); err != nil {
		t.Fatalf("delete recurring: %v", err)
	}
	list, err := repo.ListRecurring(ctx, uid)
	if err != nil {
		t.Fatalf("list recurring: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("deactivated template still listed: %+v", list)
	}
}
