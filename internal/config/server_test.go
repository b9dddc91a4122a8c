package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Fatalf("DatabaseDriver = %q, want sqlite", cfg.DatabaseDriver)
	}
	if cfg.PlayerRefresh != 24*time.Hour {
		t.Fatalf("PlayerRefresh = %v, want 24h", cfg.PlayerRefresh)
	}
	if cfg.ScanPageSize != 100 {
		t.Fatalf("ScanPageSize = %d, want 100", cfg.ScanPageSize)
	}
}

func TestLoadServerParseTypes(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/dotastats?sslmode=disable")
	t.Setenv("DOTA_MATCH_REFRESH", "72h")
	t.Setenv("CRAWL_INTERVAL", "5m")
	t.Setenv("DRAIN_BATCH", "10")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.MatchRefresh != 72*time.Hour {
		t.Fatalf("MatchRefresh = %v, want 72h", cfg.MatchRefresh)
	}
	if cfg.CrawlInterval != 5*time.Minute {
		t.Fatalf("CrawlInterval = %v, want 5m", cfg.CrawlInterval)
	}
	if cfg.DrainBatch != 10 {
		t.Fatalf("DrainBatch = %d, want 10", cfg.DrainBatch)
	}
}

func TestLoadServerRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"DATABASE_DRIVER":     "mysql",
		"DOTA_MATCH_REFRESH":  "0s",
		"DOTA_PLAYER_REFRESH": "-1h",
		"SCAN_PAGE_SIZE":      "500",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := LoadServer(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("LoadServer() error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	t.Run("unparsable duration", func(t *testing.T) {
		t.Setenv("CRAWL_INTERVAL", "soon")
		if _, err := LoadServer(); err == nil {
			t.Fatal("LoadServer() expected error, got nil")
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DRAIN_BATCH=7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DRAIN_BATCH", "")
	os.Unsetenv("DRAIN_BATCH")

	if got := LoadDotEnv(filepath.Join(dir, "missing.env"), path); got != path {
		t.Fatalf("LoadDotEnv() = %q, want %q", got, path)
	}
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.DrainBatch != 7 {
		t.Fatalf("DrainBatch = %d, want 7", cfg.DrainBatch)
	}
}
