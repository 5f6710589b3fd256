// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	SeedFile string // YAML universe seed (assets + agents), optional
	Port     int
	LogLevel string
	DevMode  bool

	// Market cycle orchestration
	CycleInterval    time.Duration // timer cadence
	DecisionInterval time.Duration // decision gate cadence (must be a multiple of CycleInterval)
	AgentTimeout     time.Duration // per-agent decision deadline
	MaxParallel      int           // bounded fan-out width

	// Market data ingestion
	CoinGeckoAPIKey string
	CoinGeckoURL    string
	IngestDelay     time.Duration // inter-asset rate limit delay
	CandleDays      int           // OHLC window requested per asset

	// Ledger
	StartingCash float64

	// Risk limits applied to every agent decision
	MaxOrdersPerCycle int
	MaxTradeNotional  float64
	CashReservePct    float64 // fraction of equity kept in cash
	MaxPositionPct    float64 // max single-position share of equity

	Backup *BackupConfig
}

// BackupConfig holds database backup configuration.
// Backups are disabled unless a bucket is configured.
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string // custom S3-compatible endpoint, empty for AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string // cron spec
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Resolve data directory to an absolute path and ensure it exists
	dataDir := getEnv("RACE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		SeedFile: getEnv("RACE_SEED_FILE", ""),
		Port:     getEnvAsInt("RACE_PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		CycleInterval:    time.Duration(getEnvAsInt("CYCLE_INTERVAL_MINUTES", 5)) * time.Minute,
		DecisionInterval: time.Duration(getEnvAsInt("DECISION_INTERVAL_MINUTES", 15)) * time.Minute,
		AgentTimeout:     time.Duration(getEnvAsInt("AGENT_TIMEOUT_SECONDS", 60)) * time.Second,
		MaxParallel:      getEnvAsInt("MAX_PARALLEL_AGENTS", 4),

		CoinGeckoAPIKey: getEnv("COINGECKO_API_KEY", ""),
		CoinGeckoURL:    getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
		IngestDelay:     time.Duration(getEnvAsInt("INGEST_DELAY_MS", 2500)) * time.Millisecond,
		CandleDays:      getEnvAsInt("CANDLE_DAYS", 1),

		StartingCash: getEnvAsFloat("STARTING_CASH", 100000),

		MaxOrdersPerCycle: getEnvAsInt("RISK_MAX_ORDERS", 5),
		MaxTradeNotional:  getEnvAsFloat("RISK_MAX_NOTIONAL", 5000),
		CashReservePct:    getEnvAsFloat("RISK_CASH_RESERVE_PCT", 0.05),
		MaxPositionPct:    getEnvAsFloat("RISK_MAX_POSITION_PCT", 0.50),

		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive")
	}
	if c.DecisionInterval < c.CycleInterval || c.DecisionInterval%c.CycleInterval != 0 {
		return fmt.Errorf("decision interval must be a multiple of the cycle interval")
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max parallel agents must be at least 1")
	}
	if c.StartingCash <= 0 {
		return fmt.Errorf("starting cash must be positive")
	}
	return nil
}

func loadBackupConfig() *BackupConfig {
	bucket := getEnv("BACKUP_BUCKET", "")
	return &BackupConfig{
		Enabled:         bucket != "",
		Bucket:          bucket,
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 14),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
