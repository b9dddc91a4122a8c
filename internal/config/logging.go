package config

import "github.com/caarlos0/env/v11"

// LogConfig controls the logger built by logging.New.
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	JSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// LoadLog reads LogConfig from the environment.
func LoadLog() (LogConfig, error) {
	var cfg LogConfig
	err := env.Parse(&cfg)
	return cfg, err
}
