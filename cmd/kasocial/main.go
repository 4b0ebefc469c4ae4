package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kasocial/internal/api"
	"kasocial/internal/chunker"
	"kasocial/internal/config"
	"kasocial/internal/feed"
	"kasocial/internal/ledger"
	"kasocial/internal/ledger/retry"
	"kasocial/internal/reconstructor"
	"kasocial/internal/storage"
	"kasocial/internal/writer"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"ledger_api", cfg.LedgerAPIURL,
		"signer", cfg.SignerURL,
		"log_level", cfg.LogLevel,
	)

	ctx := context.Background()

	// 3. Write progress store: Postgres when configured, memory otherwise
	var store storage.ProgressStore
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		store = pg
		slog.Info("Database connected successfully")
	} else {
		store = storage.NewMemoryStore()
		slog.Info("Using in-memory progress store")
	}
	defer store.Close()

	// 4. Ledger adapters
	fetchRetry := retry.NewStrategy(retry.LoadConfig("FETCH"))
	fetcher := ledger.NewRESTClient(cfg.LedgerAPIURL, fetchRetry, cfg.FetchTimeout)
	submitter := ledger.NewHTTPSubmitter(cfg.SignerURL, cfg.FetchTimeout)

	// 5. Read side: reconstructor and feed aggregator
	recon := reconstructor.New(fetcher, cfg.CacheTTL)
	feeds := feed.New(fetcher, recon, cfg.CacheTTL)

	// 6. Write side: segmented story writer
	writerCfg := writer.Config{
		Retry:        retry.LoadConfig("SUBMIT"),
		SegmentDelay: cfg.SegmentDelay,
	}
	writes := writer.New(submitter, chunker.New(), store, writerCfg)

	// 7. HTTP API
	server := api.NewServer(cfg.APIPort, recon, feeds, writes)
	server.Start()
	slog.Info("API server started", "port", cfg.APIPort)

	// 8. Graceful shutdown on interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Warn("Interrupt received, shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}

	slog.Info("kasocial stopped")
}
