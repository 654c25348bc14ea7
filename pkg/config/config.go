// Package config loads engine configuration from the environment.
//
// All tunables are environment-supplied (a .env file is honored when
// present); nothing numeric is hard-coded in engine logic. Credentials
// are read once at startup and never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/FridaySalami/spapi-sync/pkg/ratelimit"
	"github.com/FridaySalami/spapi-sync/pkg/spapi"
)

// Config holds the full engine configuration.
type Config struct {
	// LWA credentials for the token exchange.
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	RefreshToken string `validate:"required"`
	TokenURL     string `validate:"required,url"`

	// TokenSafetyMargin is how long before expiry a cached access token
	// stops being handed out.
	TokenSafetyMargin time.Duration `validate:"min=0"`

	// SigV4 identity.
	AccessKeyID     string `validate:"required"`
	SecretAccessKey string `validate:"required"`
	Region          string `validate:"required"`

	// API surface.
	Endpoint      string `validate:"required,url"`
	MarketplaceID string `validate:"required"`

	// Retry policy.
	MaxRetries  int           `validate:"min=0,max=10"`
	BackoffBase time.Duration `validate:"gt=0"`
	BackoffCap  time.Duration `validate:"gt=0"`

	// Orchestration.
	Concurrency   int `validate:"min=1,max=16"`
	MaxPages      int `validate:"min=1"`
	BatchSize     int `validate:"min=1,max=1000"`
	ProgressEvery int `validate:"min=1"`

	// Rates maps resource class to its request budget.
	Rates map[string]ratelimit.Budget `validate:"required"`

	// Collaborators. RedisAddr and MetricsAddr are optional; empty
	// disables the response cache / metrics listener.
	DatabaseURL string `validate:"required"`
	RedisAddr   string
	MetricsAddr string

	// Logging.
	LogLevel  string
	LogPretty bool
}

// Default returns the engine defaults. Credentials and the database URL
// have no default and must come from the environment.
func Default() Config {
	return Config{
		TokenURL:          "https://api.amazon.com/auth/o2/token",
		TokenSafetyMargin: 60 * time.Second,
		Region:            "eu-west-1",
		Endpoint:          "https://sellingpartnerapi-eu.amazon.com",
		MarketplaceID:     "A1F83G8C2ARO7P",
		MaxRetries:        4,
		BackoffBase:       500 * time.Millisecond,
		BackoffCap:        30 * time.Second,
		Concurrency:       2,
		MaxPages:          50,
		BatchSize:         100,
		ProgressEvery:     25,
		Rates:             spapi.DefaultBudgets(),
		LogLevel:          "info",
	}
}

// Load builds a Config from defaults overlaid with the environment and
// validates it. A .env file in the working directory is loaded first if
// present; real environment variables win over .env entries.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit env file path. An empty path falls
// back to ".env"; a missing file is not an error.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: load env file %s: %w", path, err)
		}
	} else {
		_ = godotenv.Load()
	}

	l := &envLoader{}
	cfg := Default()

	cfg.ClientID = l.getString("SPAPI_CLIENT_ID", cfg.ClientID)
	cfg.ClientSecret = l.getString("SPAPI_CLIENT_SECRET", cfg.ClientSecret)
	cfg.RefreshToken = l.getString("SPAPI_REFRESH_TOKEN", cfg.RefreshToken)
	cfg.TokenURL = l.getString("SPAPI_TOKEN_URL", cfg.TokenURL)
	cfg.TokenSafetyMargin = l.getDuration("SPAPI_TOKEN_SAFETY_MARGIN", cfg.TokenSafetyMargin)

	cfg.AccessKeyID = l.getString("SPAPI_ACCESS_KEY_ID", cfg.AccessKeyID)
	cfg.SecretAccessKey = l.getString("SPAPI_SECRET_ACCESS_KEY", cfg.SecretAccessKey)
	cfg.Region = l.getString("SPAPI_REGION", cfg.Region)

	cfg.Endpoint = l.getString("SPAPI_ENDPOINT", cfg.Endpoint)
	cfg.MarketplaceID = l.getString("SPAPI_MARKETPLACE_ID", cfg.MarketplaceID)

	cfg.MaxRetries = l.getInt("SPAPI_MAX_RETRIES", cfg.MaxRetries)
	cfg.BackoffBase = l.getDuration("SPAPI_BACKOFF_BASE", cfg.BackoffBase)
	cfg.BackoffCap = l.getDuration("SPAPI_BACKOFF_CAP", cfg.BackoffCap)

	cfg.Concurrency = l.getInt("SPAPI_CONCURRENCY", cfg.Concurrency)
	cfg.MaxPages = l.getInt("SPAPI_MAX_PAGES", cfg.MaxPages)
	cfg.BatchSize = l.getInt("SPAPI_BATCH_SIZE", cfg.BatchSize)
	cfg.ProgressEvery = l.getInt("SPAPI_PROGRESS_EVERY", cfg.ProgressEvery)

	for class, budget := range cfg.Rates {
		budget.RPS = l.getFloat(rateEnvKey("SPAPI_RATE_", class), budget.RPS)
		budget.Burst = l.getInt(rateEnvKey("SPAPI_BURST_", class), budget.Burst)
		cfg.Rates[class] = budget
	}

	cfg.DatabaseURL = l.getString("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = l.getString("REDIS_ADDR", cfg.RedisAddr)
	cfg.MetricsAddr = l.getString("METRICS_ADDR", cfg.MetricsAddr)

	cfg.LogLevel = l.getString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = l.getBool("LOG_PRETTY", cfg.LogPretty)

	if err := l.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("config: backoff cap %s is below base %s", c.BackoffCap, c.BackoffBase)
	}
	for class, budget := range c.Rates {
		if budget.RPS <= 0 {
			return fmt.Errorf("config: rate for class %q must be positive, got %v", class, budget.RPS)
		}
		if budget.Burst < 1 {
			return fmt.Errorf("config: burst for class %q must be at least 1, got %d", class, budget.Burst)
		}
	}
	return nil
}

// rateEnvKey maps a resource class to its env override key,
// e.g. ("SPAPI_RATE_", "order-items") -> "SPAPI_RATE_ORDER_ITEMS".
func rateEnvKey(prefix, class string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(class, "-", "_"))
}

// envLoader reads typed environment values, accumulating parse errors so
// a misconfigured environment reports everything wrong at once.
type envLoader struct {
	errs []error
}

func (l *envLoader) getString(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func (l *envLoader) getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return n
}

func (l *envLoader) getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return f
}

func (l *envLoader) getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return b
}

func (l *envLoader) getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return d
}

func (l *envLoader) err() error {
	return errors.Join(l.errs...)
}
