package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sreeduggirala/polytrade/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Market endpoints
	DataAPIURL string // REST endpoint serving recent trades and order books
	ClobAPIURL string // Order book endpoint
	RelayURL   string // Order submission relay

	// Live stream (optional, supplements polling)
	EnableStream bool
	StreamURL    string

	// Tracked source wallets
	TrackedWallets []string // Wallet addresses whose trades are mirrored

	// Polling
	PollInterval time.Duration
	FetchLimit   int           // Max trades fetched per wallet per tick
	SeenHorizon  time.Duration // How long dedup keys are retained

	// Mirroring
	UserID          string  // Bot user whose account receives mirrored orders
	ScaleFactor     float64 // Fraction of the source notional to mirror
	MinNotional     float64 // Mirrored orders below this are skipped
	MaxNotional     float64 // Cap per mirrored order; 0 disables
	MaxOrdersPerDay int     // Submissions allowed per day; 0 disables

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// HTTP client
	HTTPTimeout time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Market endpoints
	cfg.DataAPIURL = getEnv("DATA_API_URL", "https://data-api.polymarket.com")
	cfg.ClobAPIURL = getEnv("CLOB_API_URL", "https://clob.polymarket.com")
	cfg.RelayURL = getEnv("RELAY_URL", "")
	if cfg.RelayURL == "" {
		errs = append(errs, "RELAY_URL must be set")
	}

	// Live stream
	cfg.EnableStream = getEnvAsBool("ENABLE_STREAM", false)
	cfg.StreamURL = getEnv("STREAM_URL", "wss://ws-live-data.polymarket.com")
	if cfg.EnableStream && cfg.StreamURL == "" {
		errs = append(errs, "STREAM_URL must be set when ENABLE_STREAM is true")
	}

	// Tracked wallets
	cfg.TrackedWallets = getEnvAsList("TRACKED_WALLETS")
	if len(cfg.TrackedWallets) == 0 {
		errs = append(errs, "TRACKED_WALLETS must list at least one wallet address")
	}

	// Polling
	pollSeconds := getEnvAsInt("POLL_INTERVAL_SECONDS", 10)
	if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	cfg.FetchLimit = getEnvAsInt("FETCH_LIMIT", 50)
	if cfg.FetchLimit <= 0 {
		errs = append(errs, "FETCH_LIMIT must be positive")
	}

	horizonMinutes := getEnvAsInt("SEEN_HORIZON_MINUTES", 60)
	if horizonMinutes <= 0 {
		errs = append(errs, "SEEN_HORIZON_MINUTES must be positive")
	}
	cfg.SeenHorizon = time.Duration(horizonMinutes) * time.Minute

	// Mirroring
	cfg.UserID = getEnv("USER_ID", "")
	if cfg.UserID == "" {
		errs = append(errs, "USER_ID must be set")
	}

	cfg.ScaleFactor, err = getEnvAsFloatRequired("SCALE_FACTOR", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCALE_FACTOR: %v", err))
	} else if cfg.ScaleFactor <= 0 || cfg.ScaleFactor > 1.0 {
		errs = append(errs, "SCALE_FACTOR must be in (0.0, 1.0]")
	}

	cfg.MinNotional, err = getEnvAsFloatRequired("MIN_NOTIONAL", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_NOTIONAL: %v", err))
	} else if cfg.MinNotional < 0 {
		errs = append(errs, "MIN_NOTIONAL cannot be negative")
	}

	cfg.MaxNotional, err = getEnvAsFloatRequired("MAX_NOTIONAL", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_NOTIONAL: %v", err))
	} else if cfg.MaxNotional < 0 {
		errs = append(errs, "MAX_NOTIONAL cannot be negative")
	} else if cfg.MaxNotional > 0 && cfg.MaxNotional < cfg.MinNotional {
		errs = append(errs, "MAX_NOTIONAL must be at least MIN_NOTIONAL")
	}

	cfg.MaxOrdersPerDay = getEnvAsInt("MAX_ORDERS_PER_DAY", 0)
	if cfg.MaxOrdersPerDay < 0 {
		errs = append(errs, "MAX_ORDERS_PER_DAY cannot be negative")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/polytrade.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// HTTP client
	timeoutSeconds := getEnvAsInt("HTTP_TIMEOUT_SECONDS", 15)
	if timeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsList parses a comma-separated value, trimming whitespace and
// dropping empty entries.
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
