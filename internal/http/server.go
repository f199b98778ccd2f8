// Package http exposes the JSON API: transaction and recurring template
// CRUD, receipt uploads, the ranking trigger and leaderboard reads.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"risparmio/internal/cache"
	"risparmio/internal/config"
	"risparmio/internal/core"
	"risparmio/internal/services"
)

// RankingCalculator runs the monthly ranking batch.
type RankingCalculator interface {
	Calculate(ctx context.Context, month core.Month, now time.Time) (services.CalculateResult, error)
}

// Store is the slice of the repository the handlers read from or write
// to directly.
type Store interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	GetRanking(ctx context.Context, userID int64, month core.Month) (core.MonthlyRanking, error)
	ListRankings(ctx context.Context, month core.Month, page, perPage int) ([]core.MonthlyRanking, error)
	CountRankings(ctx context.Context, month core.Month) (int, error)
	ListSnapshots(ctx context.Context, userID int64, month core.Month) ([]core.RankingSnapshot, error)
	GetInsight(ctx context.Context, userID int64, month core.Month) (core.Insight, error)
	CreateReceipt(ctx context.Context, rec core.Receipt) error
	GetReceipt(ctx context.Context, userID int64, id string) (core.Receipt, error)
}

type Server struct {
	http.Server
	cfg          config.Config
	store        Store
	transactions *services.TransactionService
	calculator   RankingCalculator
	rateLimiter  *rateLimiter

	// Leaderboard pages are cached between calculation runs and
	// invalidated by prefix when a run completes.
	leaderboardCache *cache.LRU[leaderboardResponse]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(cfg config.Config, store Store, transactions *services.TransactionService, calculator RankingCalculator) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    ":" + cfg.Port,
			Handler: mux,
		},
		cfg:              cfg,
		store:            store,
		transactions:     transactions,
		calculator:       calculator,
		rateLimiter:      newRateLimiter(),
		leaderboardCache: cache.New[leaderboardResponse](100, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/api/transactions", s.withSecurityHeaders(s.withUser(s.handleTransactions)))
	mux.HandleFunc("/api/transactions/", s.withSecurityHeaders(s.withUser(s.handleTransactionByID)))
	mux.HandleFunc("/api/recurring", s.withSecurityHeaders(s.withUser(s.handleRecurring)))
	mux.HandleFunc("/api/recurring/", s.withSecurityHeaders(s.withUser(s.handleRecurringByID)))
	mux.HandleFunc("/api/receipts", s.withSecurityHeaders(s.withUser(s.handleUploadReceipt)))
	mux.HandleFunc("/api/receipts/", s.withSecurityHeaders(s.withUser(s.handleGetReceipt)))

	mux.HandleFunc("/api/ranking/calculate", s.withSecurityHeaders(s.withBatchToken(s.handleCalculate)))
	mux.HandleFunc("/api/ranking", s.withSecurityHeaders(s.handleLeaderboard))
	mux.HandleFunc("/api/ranking/me", s.withSecurityHeaders(s.withUser(s.handleMyRanking)))
	mux.HandleFunc("/api/ranking/history", s.withSecurityHeaders(s.withUser(s.handleRankingHistory)))
	mux.HandleFunc("/api/insights", s.withSecurityHeaders(s.withUser(s.handleGetInsight)))

	return s
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", ip,
			"user_agent", r.Header.Get("User-Agent"))

		if isMutating(r.Method) && !s.rateLimiter.allow(ip) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", ip, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			errorJSON(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ip)
	}
}

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.leaderboardCache.PurgeExpired(); cleaned > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
