package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig holds the settings of cmd/server.
type ServerConfig struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	SteamAPIKey string `env:"STEAM_API_KEY"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"./data/dotastats.db"`

	MatchRefresh  time.Duration `env:"DOTA_MATCH_REFRESH" envDefault:"168h"`
	PlayerRefresh time.Duration `env:"DOTA_PLAYER_REFRESH" envDefault:"24h"`

	CrawlInterval  time.Duration `env:"CRAWL_INTERVAL" envDefault:"30s"`
	ScanPageSize   int           `env:"SCAN_PAGE_SIZE" envDefault:"100"`
	DrainBatch     int           `env:"DRAIN_BATCH" envDefault:"50"`
	APIMinInterval time.Duration `env:"API_MIN_INTERVAL" envDefault:"1s"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

// LoadServer reads ServerConfig from the environment and validates it.
func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c ServerConfig) Validate() error {
	switch {
	case c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres":
		return fmt.Errorf("%w: DATABASE_DRIVER must be sqlite or postgres, got %q", ErrInvalidConfig, c.DatabaseDriver)
	case c.MatchRefresh <= 0:
		return fmt.Errorf("%w: DOTA_MATCH_REFRESH must be positive", ErrInvalidConfig)
	case c.PlayerRefresh <= 0:
		return fmt.Errorf("%w: DOTA_PLAYER_REFRESH must be positive", ErrInvalidConfig)
	case c.CrawlInterval <= 0:
		return fmt.Errorf("%w: CRAWL_INTERVAL must be positive", ErrInvalidConfig)
	case c.ScanPageSize <= 0 || c.ScanPageSize > 100:
		return fmt.Errorf("%w: SCAN_PAGE_SIZE must be between 1 and 100", ErrInvalidConfig)
	case c.DrainBatch <= 0:
		return fmt.Errorf("%w: DRAIN_BATCH must be positive", ErrInvalidConfig)
	case c.APIMinInterval < 0:
		return fmt.Errorf("%w: API_MIN_INTERVAL must not be negative", ErrInvalidConfig)
	}
	return nil
}
