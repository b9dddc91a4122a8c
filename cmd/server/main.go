package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edvart/dotastats/internal/config"
	"github.com/edvart/dotastats/internal/crawler"
	"github.com/edvart/dotastats/internal/dotaapi"
	"github.com/edvart/dotastats/internal/freshness"
	"github.com/edvart/dotastats/internal/ingest"
	"github.com/edvart/dotastats/internal/logging"
	"github.com/edvart/dotastats/internal/store"
	"github.com/edvart/dotastats/internal/web"
)

func main() {
	// Configuration from environment, optionally seeded from a .env file
	envFile := config.LoadDotEnv(".env", "../.env")

	logCfg, err := config.LoadLog()
	if err != nil {
		logrus.Fatalf("Invalid log configuration: %v", err)
	}
	logger := logging.New(logCfg)
	if envFile != "" {
		logger.WithField("path", envFile).Info("Loaded .env file")
	}

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.SteamAPIKey == "" {
		logger.Warn("STEAM_API_KEY not set. Crawling is disabled; only the read API will run.")
	}

	// Ensure data directory exists for file databases
	if cfg.DatabaseDriver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseURL), 0755); err != nil {
			logger.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// Initialize store
	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cursor, err := ingest.InitCursor(ctx, db)
	if err != nil {
		logger.Fatalf("Failed to load sequence cursor: %v", err)
	}
	logger.WithField("last_match_seq_num", cursor.Value()).Info("Sequence cursor loaded")

	policy, err := freshness.New(db, freshness.Config{
		MatchTTL:  cfg.MatchRefresh,
		PlayerTTL: cfg.PlayerRefresh,
	})
	if err != nil {
		logger.Fatalf("Invalid refresh configuration: %v", err)
	}

	queue, err := ingest.NewQueue(ctx, db, cursor, logger.WithField("component", "queue"))
	if err != nil {
		logger.Fatalf("Failed to load ingestion queue: %v", err)
	}

	// Start crawler if the Web API is reachable
	var wg sync.WaitGroup
	if cfg.SteamAPIKey != "" {
		client := dotaapi.NewClient(cfg.SteamAPIKey, dotaapi.WithMinInterval(cfg.APIMinInterval))
		c := crawler.New(client, db, queue, policy, crawler.Config{
			PageSize:   cfg.ScanPageSize,
			DrainBatch: cfg.DrainBatch,
		}, logger.WithField("component", "crawler"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx, cfg.CrawlInterval)
		}()
	}

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           web.NewServer(db, logger.WithField("component", "web")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		logger.Info("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("HTTP server shutdown error: %v", err)
		}
	}()

	logger.WithFields(logrus.Fields{
		"addr":     cfg.HTTPAddr,
		"database": cfg.DatabaseDriver,
	}).Info("Server running")

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	// Let an in-flight crawl cycle finish its transaction before closing the database
	wg.Wait()
	logger.Info("Server stopped")
}
