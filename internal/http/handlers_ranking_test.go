package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risparmio/internal/config"
	"risparmio/internal/core"
	"risparmio/internal/services"
	"risparmio/internal/storage"
)

type fakeStore struct {
	users     map[int64]core.User
	rankings  map[int64]core.MonthlyRanking
	snapshots []core.RankingSnapshot
	insights  map[int64]core.Insight
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]core.User),
		rankings: make(map[int64]core.MonthlyRanking),
		insights: make(map[int64]core.Insight),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, ok := f.users[id]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

func (f *fakeStore) GetRanking(ctx context.Context, userID int64, month core.Month) (core.MonthlyRanking, error) {
	r, ok := f.rankings[userID]
	if !ok || r.Month != month {
		return core.MonthlyRanking{}, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListRankings(ctx context.Context, month core.Month, page, perPage int) ([]core.MonthlyRanking, error) {
	var out []core.MonthlyRanking
	for _, r := range f.rankings {
		if r.Month == month {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CountRankings(ctx context.Context, month core.Month) (int, error) {
	n := 0
	for _, r := range f.rankings {
		if r.Month == month {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListSnapshots(ctx context.Context, userID int64, month core.Month) ([]core.RankingSnapshot, error) {
	var out []core.RankingSnapshot
	for _, s := range f.snapshots {
		if s.UserID == userID && s.Month == month {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetInsight(ctx context.Context, userID int64, month core.Month) (core.Insight, error) {
	in, ok := f.insights[userID]
	if !ok || in.Month != month {
		return core.Insight{}, storage.ErrNotFound
	}
	return in, nil
}

func (f *fakeStore) CreateReceipt(ctx context.Context, rec core.Receipt) error { return nil }

func (f *fakeStore) GetReceipt(ctx context.Context, userID int64, id string) (core.Receipt, error) {
	return core.Receipt{}, storage.ErrNotFound
}

type fakeCalculator struct {
	result services.CalculateResult
	err    error
	called int
	month  core.Month
}

func (c *fakeCalculator) Calculate(ctx context.Context, month core.Month, now time.Time) (services.CalculateResult, error) {
	c.called++
	c.month = month
	if c.err != nil {
		return services.CalculateResult{}, c.err
	}
	return c.result, nil
}

func testConfig() config.Config {
	return config.Config{
		Port:            "0",
		RankingToken:    "batch-secret",
		JWTSecret:       "jwt-secret",
		DefaultPageSize: 20,
		MaxPageSize:     100,
	}
}

func newTestServer(t *testing.T, store Store, calc RankingCalculator) *Server {
	t.Helper()
	s := NewServer(testConfig(), store, nil, calc)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func userToken(t *testing.T, secret string, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func month(t *testing.T, s string) core.Month {
	t.Helper()
	m, err := core.ParseMonth(s)
	require.NoError(t, err)
	return m
}

func TestCalculateEndpointAuth(t *testing.T) {
	calc := &fakeCalculator{}
	s := newTestServer(t, newFakeStore(), calc)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic batch-secret", http.StatusUnauthorized},
		{"valid token", "Bearer batch-secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/ranking/calculate", strings.NewReader(`{"month":"2024-03"}`))
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			s.Server.Handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
	assert.Equal(t, 1, calc.called, "only the authorized request should reach the calculator")
}

func TestCalculateEndpointBadMonth(t *testing.T) {
	calc := &fakeCalculator{}
	s := newTestServer(t, newFakeStore(), calc)

	req := httptest.NewRequest(http.MethodPost, "/api/ranking/calculate", strings.NewReader(`{"month":"March"}`))
	req.Header.Set("Authorization", "Bearer batch-secret")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0, calc.called)
}

func TestCalculateEndpointDefaultsToCurrentMonth(t *testing.T) {
	calc := &fakeCalculator{}
	s := newTestServer(t, newFakeStore(), calc)

	req := httptest.NewRequest(http.MethodPost, "/api/ranking/calculate", nil)
	req.Header.Set("Authorization", "Bearer batch-secret")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.CurrentMonth(time.Now()), calc.month)
}

func TestCalculateEndpointMonthQueryParam(t *testing.T) {
	calc := &fakeCalculator{}
	s := newTestServer(t, newFakeStore(), calc)

	req := httptest.NewRequest(http.MethodPost, "/api/ranking/calculate?month=2024-02", nil)
	req.Header.Set("Authorization", "Bearer batch-secret")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, month(t, "2024-02"), calc.month)
}

func TestRateLimitCoversDeletes(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeCalculator{})

	// Spend the per-IP budget; httptest requests share one RemoteAddr.
	for i := 0; i < maxRequestsPerMinute; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/transactions", nil)
		rec := httptest.NewRecorder()
		s.Server.Handler.ServeHTTP(rec, req)
		require.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/transactions/1", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCalculateEndpointReportsCounts(t *testing.T) {
	calc := &fakeCalculator{
		result: services.CalculateResult{
			Month:     month(t, "2024-03"),
			Processed: 5,
			Failed:    1,
		},
	}
	s := newTestServer(t, newFakeStore(), calc)

	req := httptest.NewRequest(http.MethodPost, "/api/ranking/calculate", strings.NewReader(`{"month":"2024-03"}`))
	req.Header.Set("Authorization", "Bearer batch-secret")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-03", body["month"])
	assert.Equal(t, float64(5), body["processed"])
	assert.Equal(t, float64(1), body["failed"])
}

func TestCalculateEndpointError(t *testing.T) {
	calc := &fakeCalculator{err: errors.New("db down")}
	s := newTestServer(t, newFakeStore(), calc)

	req := httptest.NewRequest(http.MethodPost, "/api/ranking/calculate", strings.NewReader(`{"month":"2024-03"}`))
	req.Header.Set("Authorization", "Bearer batch-secret")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	store := newFakeStore()
	m := month(t, "2024-03")
	store.users[1] = core.User{ID: 1, Username: "marta"}
	store.rankings[1] = core.MonthlyRanking{
		UserID:      1,
		Month:       m,
		Position:    1,
		SavingsRate: 80,
		Badges:      []core.Badge{core.BadgeTop1, core.BadgeSaver75},
	}
	s := newTestServer(t, store, &fakeCalculator{})

	req := httptest.NewRequest(http.MethodGet, "/api/ranking?month=2024-03", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body leaderboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-03", body.Month)
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Rankings, 1)
	assert.Equal(t, 1, body.Rankings[0].Position)
	assert.Contains(t, body.Rankings[0].Badges, "top-1")
}

func TestLeaderboardUsernameLookup(t *testing.T) {
	store := newFakeStore()
	m := month(t, "2024-03")
	store.users[1] = core.User{ID: 1, Username: "marta"}
	store.rankings[1] = core.MonthlyRanking{UserID: 1, Month: m, Position: 2, SavingsRate: 40}
	s := newTestServer(t, store, &fakeCalculator{})

	req := httptest.NewRequest(http.MethodGet, "/api/ranking?month=2024-03&username=marta", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/ranking?month=2024-03&username=nobody", nil)
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMyRankingEndpoint(t *testing.T) {
	store := newFakeStore()
	m := month(t, "2024-03")
	store.users[7] = core.User{ID: 7, Username: "marta", CurrentStreak: 3, TotalBadges: 5}
	store.rankings[7] = core.MonthlyRanking{UserID: 7, Month: m, Position: 2, SavingsRate: 42.5}
	s := newTestServer(t, store, &fakeCalculator{})

	req := httptest.NewRequest(http.MethodGet, "/api/ranking/me?month=2024-03", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, "jwt-secret", "7"))
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["current_streak"])
	assert.Equal(t, float64(5), body["total_badges"])
}

func TestMyRankingRequiresValidJWT(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeCalculator{})

	req := httptest.NewRequest(http.MethodGet, "/api/ranking/me", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/ranking/me", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, "wrong-secret", "7"))
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRankingHistoryEndpoint(t *testing.T) {
	store := newFakeStore()
	m := month(t, "2024-03")
	store.snapshots = []core.RankingSnapshot{
		{UserID: 7, Month: m, Day: 10, Position: 3, SavingsRate: 30},
		{UserID: 7, Month: m, Day: 20, Position: 1, SavingsRate: 55},
		{UserID: 8, Month: m, Day: 20, Position: 2, SavingsRate: 50},
	}
	s := newTestServer(t, store, &fakeCalculator{})

	req := httptest.NewRequest(http.MethodGet, "/api/ranking/history?month=2024-03", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, "jwt-secret", "7"))
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Snapshots []struct {
			Day int `json:"day"`
		} `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Snapshots, 2, "only the caller's snapshots")
}

func TestInsightEndpoint(t *testing.T) {
	store := newFakeStore()
	m := month(t, "2024-03")
	store.insights[7] = core.Insight{
		UserID:      7,
		Month:       m,
		Text:        "Nice month!",
		Model:       "gemini-2.0-flash",
		GeneratedAt: time.Now(),
	}
	s := newTestServer(t, store, &fakeCalculator{})

	req := httptest.NewRequest(http.MethodGet, "/api/insights?month=2024-03", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, "jwt-secret", "7"))
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/insights?month=2024-04", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, "jwt-secret", "7"))
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalculateInvalidatesLeaderboardCache(t *testing.T) {
	store := newFakeStore()
	m := month(t, "2024-03")
	store.rankings[1] = core.MonthlyRanking{UserID: 1, Month: m, Position: 1, SavingsRate: 10}
	calc := &fakeCalculator{result: services.CalculateResult{Month: m, Processed: 1}}
	s := newTestServer(t, store, calc)

	// Prime the cache.
	req := httptest.NewRequest(http.MethodGet, "/api/ranking?month=2024-03", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Change the underlying data; the cached page still serves the old row.
	store.rankings[1] = core.MonthlyRanking{UserID: 1, Month: m, Position: 1, SavingsRate: 99}

	req = httptest.NewRequest(http.MethodPost, "/api/ranking/calculate", strings.NewReader(`{"month":"2024-03"}`))
	req.Header.Set("Authorization", "Bearer batch-secret")
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/ranking?month=2024-03", nil)
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body leaderboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rankings, 1)
	assert.InDelta(t, 99, body.Rankings[0].SavingsRate, 0.001, "cache must be invalidated after a run")
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeCalculator{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
