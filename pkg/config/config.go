// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Database drivers understood by the persistence layer.
const (
	DriverSQLite3 = "sqlite3" // mattn/go-sqlite3
	DriverSQLite  = "sqlite"  // modernc.org/sqlite
	DriverLibSQL  = "libsql"  // Turso
)

// Generator providers.
const (
	ProviderGemini   = "gemini"
	ProviderLemur    = "assemblyai"
	ProviderFallback = "fallback"
)

// Config holds every tunable of the service.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	GinMode string `env:"GIN_MODE" envDefault:"debug"`

	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"150s"`
	ServerIdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSOrigins        []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:4321"`

	DBDriver           string        `env:"DB_DRIVER" envDefault:"sqlite3"`
	DBPath             string        `env:"DB_PATH" envDefault:"data/reportcache.db"`
	TursoDatabaseURL   string        `env:"TURSO_DATABASE_URL"`
	TursoAuthToken     string        `env:"TURSO_AUTH_TOKEN"`
	DBMaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"1"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"500ms"`

	FreshnessThresholdDays int           `env:"FRESHNESS_THRESHOLD_DAYS" envDefault:"15"`
	GenerationTimeout      time.Duration `env:"GENERATION_TIMEOUT" envDefault:"120s"`
	LeaseTTL               time.Duration `env:"LEASE_TTL" envDefault:"150s"`
	LeasePollInterval      time.Duration `env:"LEASE_POLL_INTERVAL" envDefault:"250ms"`
	LeasePollMaxInterval   time.Duration `env:"LEASE_POLL_MAX_INTERVAL" envDefault:"5s"`
	TierCatalog            string        `env:"TIER_CATALOG" envDefault:"free:3:lifetime,basic:10:monthly,pro:50:monthly,enterprise:10000:monthly"`
	DefaultTier            string        `env:"DEFAULT_TIER" envDefault:"free"`

	GeneratorProvider string  `env:"GENERATOR_PROVIDER" envDefault:"fallback"`
	GeminiAPIKey      string  `env:"GEMINI_API_KEY"`
	GeminiModel       string  `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	AAIAPIKey         string  `env:"AAI_API_KEY"`
	LemurModel        string  `env:"LEMUR_MODEL" envDefault:"anthropic/claude-3-5-sonnet"`
	MaxOutputTokens   int64   `env:"GENERATION_MAX_OUTPUT_TOKENS" envDefault:"4000"`
	Temperature       float64 `env:"GENERATION_TEMPERATURE" envDefault:"0.4"`

	JWTSecret         string        `env:"JWT_SECRET"`
	SysopPasswordHash string        `env:"SYSOP_PASSWORD_HASH"`
	SysopTokenTTL     time.Duration `env:"SYSOP_TOKEN_TTL" envDefault:"12h"`

	ResendAPIKey  string `env:"RESEND_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"noreply@permabullish.com"`
	EmailFromName string `env:"EMAIL_FROM_NAME" envDefault:"Permabullish"`
	UpgradeURL    string `env:"UPGRADE_URL" envDefault:"https://permabullish.com/pricing"`

	LogDirectory string `env:"LOG_DIRECTORY" envDefault:"logs"`
	LogToFile    bool   `env:"LOG_TO_FILE" envDefault:"false"`
	LogJSON      bool   `env:"LOG_JSON" envDefault:"true"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogSource    bool   `env:"LOG_INCLUDE_SOURCE" envDefault:"false"`

	CleanupInterval        time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`
	AuthorizationRetention time.Duration `env:"AUTHORIZATION_RETENTION" envDefault:"720h"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	loadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFrom parses configuration from an explicit variable map.
func LoadFrom(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite3, DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for driver %s", c.DBDriver)
		}
	case DriverLibSQL:
		if c.TursoDatabaseURL == "" {
			return fmt.Errorf("TURSO_DATABASE_URL is required for driver %s", c.DBDriver)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.GeneratorProvider {
	case ProviderGemini, ProviderLemur, ProviderFallback:
	default:
		return fmt.Errorf("unsupported GENERATOR_PROVIDER %q", c.GeneratorProvider)
	}

	if c.FreshnessThresholdDays < 0 {
		return fmt.Errorf("FRESHNESS_THRESHOLD_DAYS must not be negative")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}
	if c.LeaseTTL < c.GenerationTimeout {
		return fmt.Errorf("LEASE_TTL (%s) must cover GENERATION_TIMEOUT (%s)", c.LeaseTTL, c.GenerationTimeout)
	}

	catalog, err := ParseTierCatalog(c.TierCatalog)
	if err != nil {
		return err
	}
	if _, ok := catalog.Lookup(c.DefaultTier); !ok {
		return fmt.Errorf("DEFAULT_TIER %q is not in TIER_CATALOG", c.DefaultTier)
	}
	return nil
}

// Tiers returns the parsed tier catalog. Validate has already vetted it.
func (c *Config) Tiers() TierCatalog {
	catalog, _ := ParseTierCatalog(c.TierCatalog)
	return catalog
}

// SlogLevel converts LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DataSourceName builds the DSN for the configured driver.
func (c *Config) DataSourceName() string {
	switch c.DBDriver {
	case DriverLibSQL:
		if c.TursoAuthToken == "" {
			return c.TursoDatabaseURL
		}
		return fmt.Sprintf("%s?authToken=%s", c.TursoDatabaseURL, c.TursoAuthToken)
	case DriverSQLite:
		return "file:" + c.DBPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	default:
		return "file:" + c.DBPath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate"
	}
}
