package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"risparmio/internal/amqp"
	"risparmio/internal/clients/gemini"
	"risparmio/internal/config"
	"risparmio/internal/services"
	"risparmio/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting insight-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the insight worker")
		os.Exit(1)
	}
	if cfg.GeminiAPIKey == "" {
		logger.Error("GEMINI_API_KEY is required for the insight worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	geminiClient, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel))
	if err != nil {
		logger.Error("Failed to initialize Gemini client", "error", err)
		os.Exit(1)
	}

	insightService := services.NewInsightService(repo, geminiClient, cfg.GeminiModel)

	logger.Info("Insight worker configured",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"model", cfg.GeminiModel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqp.ConsumeWithReconnect(gctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			func(msg *amqp.InsightRequestMessage) error {
				return insightService.HandleRequest(gctx, *msg)
			})
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Insight worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Insight-worker shutdown complete")
}
