package cleanup

import (
	"time"

	"github.com/AtRiskMedia/reportcache-go/pkg/config"
)

// Config holds cleanup worker configuration, sourced from the central config package.
type Config struct {
	CleanupInterval        time.Duration
	AuthorizationRetention time.Duration
}

// NewConfig creates a new cleanup configuration from the loaded service config.
func NewConfig(cfg *config.Config) *Config {
	return &Config{
		CleanupInterval:        cfg.CleanupInterval,
		AuthorizationRetention: cfg.AuthorizationRetention,
	}
}
