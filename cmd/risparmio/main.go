package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"risparmio/internal/amqp"
	"risparmio/internal/config"
	"risparmio/internal/export"
	gsheet "risparmio/internal/export/google"
	apphttp "risparmio/internal/http"
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

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional: without it the ranking batch still runs, only the
	// async insight generation is skipped.
	var publisher services.InsightPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, insights disabled", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized - insight requests will be published")
		}
	} else {
		logger.Info("AMQP disabled - no insight requests will be published")
	}

	// Sheets export is optional too.
	var exporter export.LeaderboardWriter
	if cfg.SheetsSpreadsheetID != "" {
		cli, err := gsheet.NewClient(context.Background(), cfg.SheetsSpreadsheetID, cfg.SheetsName, cfg.SheetsCredentialsFile)
		if err != nil {
			logger.Warn("Failed to initialize Sheets client, leaderboard export disabled", "error", err)
		} else {
			exporter = cli
			logger.Info("Sheets client initialized - leaderboard will be exported", "sheet", cfg.SheetsName)
		}
	}

	transactionService := services.NewTransactionService(repo)
	rankingService := services.NewRankingService(repo, publisher, exporter)

	srv := apphttp.NewServer(*cfg, repo, transactionService, rankingService)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting risparmio server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
