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
	DataDir      string // Base directory for the market database (always absolute)
	TushareToken string // Primary vendor token; empty disables the primary adapter
	LogLevel     string
	DevMode      bool

	Selection  SelectionConfig
	Collection CollectionConfig
	Cache      CacheConfig

	IngestCron string // Cron expression for the nightly incremental ingest
}

// SelectionConfig tunes the selection runner.
type SelectionConfig struct {
	Concurrency int           // 0 = auto-sized from CPU count
	BatchSize   int
	Timeout     time.Duration
}

// CollectionConfig tunes ingestion pacing and retries.
type CollectionConfig struct {
	CallDelay      time.Duration
	RetryCount     int
	RetryBaseDelay time.Duration
}

// CacheConfig sizes the source router's result cache.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	dataDir := getEnv("STOCK_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		TushareToken: getEnv("TUSHARE_TOKEN", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		Selection: SelectionConfig{
			Concurrency: getEnvAsInt("ADVANCED_SELECTION_CONCURRENCY", 0),
			BatchSize:   getEnvAsInt("ADVANCED_SELECTION_BATCH_SIZE", 256),
			Timeout:     time.Duration(getEnvAsInt("ADVANCED_SELECTION_TIMEOUT", 1200)) * time.Second,
		},
		Collection: CollectionConfig{
			CallDelay:      time.Duration(getEnvAsInt("COLLECTION_CALL_DELAY_MS", 500)) * time.Millisecond,
			RetryCount:     getEnvAsInt("COLLECTION_RETRY_COUNT", 3),
			RetryBaseDelay: time.Duration(getEnvAsInt("COLLECTION_RETRY_BASE_DELAY_MS", 2000)) * time.Millisecond,
		},
		Cache: CacheConfig{
			TTL:        time.Duration(getEnvAsInt("SOURCE_CACHE_TTL_SECONDS", 300)) * time.Second,
			MaxEntries: getEnvAsInt("SOURCE_CACHE_MAX_ENTRIES", 1000),
		},
		IngestCron: getEnv("INGEST_CRON", "30 17 * * 1-5"),
	}

	return cfg, nil
}

// DatabasePath returns the path of the market database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "market.db")
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
