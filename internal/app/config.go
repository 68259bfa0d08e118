package app

import (
	"fmt"
	"slices"
)

// Config holds what an App needs before any configuration file is read.
type Config struct {
	// ConfigPaths are instance configuration files merged over the
	// embedded defaults, in order.
	ConfigPaths []string

	// LogFormat and LogLevel override the log block of the configuration
	// when set.
	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

var (
	logFormats = []string{"text", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

func NewConfig(cfg Config) (*Config, error) {
	if cfg.LogFormat != "" && !slices.Contains(logFormats, cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if cfg.LogLevel != "" && !slices.Contains(logLevels, cfg.LogLevel) {
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck-port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
