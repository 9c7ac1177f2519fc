package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Backtest defaults (a run must be reproducible from a strategy name alone)
	Backtest BacktestConfig

	// Allocator defaults
	Allocator AllocatorConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration for the field tables.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// BacktestConfig holds the default backtest invocation parameters.
// PriceField names the field used for return accrual and for pricing
// allocations.
type BacktestConfig struct {
	InitialCapital float64
	RebalanceFreq  string // daily, weekly, monthly
	CostRate       float64
	TopK           int
	Weighting      string // equal, score
	RiskFreeRate   float64
	PriceField     string
}

// AllocatorConfig holds the default allocation parameters.
type AllocatorConfig struct {
	Capital      float64
	MaxPositions int
	MaxWeight    float64
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8086"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Backtest: BacktestConfig{
			InitialCapital: getEnvAsFloat("BACKTEST_CAPITAL", 1_000_000),
			RebalanceFreq:  getEnv("BACKTEST_REBALANCE_FREQ", "monthly"),
			CostRate:       getEnvAsFloat("BACKTEST_COST_RATE", 0.001425),
			TopK:           getEnvAsInt("BACKTEST_TOP_K", 10),
			Weighting:      getEnv("BACKTEST_WEIGHTING", "equal"),
			RiskFreeRate:   getEnvAsFloat("BACKTEST_RISK_FREE_RATE", 0.02),
			PriceField:     getEnv("BACKTEST_PRICE_FIELD", "close"),
		},

		Allocator: AllocatorConfig{
			Capital:      getEnvAsFloat("ALLOCATOR_CAPITAL", 1_000_000),
			MaxPositions: getEnvAsInt("ALLOCATOR_MAX_POSITIONS", 10),
			MaxWeight:    getEnvAsFloat("ALLOCATOR_MAX_WEIGHT", 0.15),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Backtest.RebalanceFreq {
	case "daily", "weekly", "monthly":
	default:
		return fmt.Errorf("BACKTEST_REBALANCE_FREQ must be one of: daily, weekly, monthly")
	}

	switch c.Backtest.Weighting {
	case "equal", "score":
	default:
		return fmt.Errorf("BACKTEST_WEIGHTING must be one of: equal, score")
	}

	if c.Backtest.TopK <= 0 {
		return fmt.Errorf("BACKTEST_TOP_K must be positive")
	}
	if c.Backtest.PriceField == "" {
		return fmt.Errorf("BACKTEST_PRICE_FIELD must not be empty")
	}
	if c.Allocator.MaxPositions <= 0 {
		return fmt.Errorf("ALLOCATOR_MAX_POSITIONS must be positive")
	}
	if c.Allocator.MaxWeight <= 0 || c.Allocator.MaxWeight > 1 {
		return fmt.Errorf("ALLOCATOR_MAX_WEIGHT must be in (0, 1]")
	}

	return nil
}

// loadEnvFile tries to load .env from the usual locations.
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
