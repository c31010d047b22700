package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config svj-registry (HTTP API) configuration.
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig

	RedisEnabled bool
	Redis        struct {
		Addr     string
		Password string
		DB       int
	}

	Log struct {
		Level  string
		Format string
	}

	Sync SyncConfig
}

// DatabaseConfig Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// SyncConfig tunables of the reconciliation pipeline.
type SyncConfig struct {
	// Thresholds are similarity ratios in [0,1].
	PartialThreshold float64
	SuggestThreshold float64
	AutoThreshold    float64
	// ImportTTLMinutes is how long a staged import waits for confirmation.
	ImportTTLMinutes int
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if the DB is unavailable,
	// svj-registry falls back to the in-memory store.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "svj")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Sync.PartialThreshold = parseFloat(getEnv("SYNC_PARTIAL_THRESHOLD", "0.75"), 0.75)
	cfg.Sync.SuggestThreshold = parseFloat(getEnv("SYNC_SUGGEST_THRESHOLD", "0.5"), 0.5)
	cfg.Sync.AutoThreshold = parseFloat(getEnv("SYNC_AUTO_THRESHOLD", "0.9"), 0.9)
	cfg.Sync.ImportTTLMinutes = parseInt(getEnv("IMPORT_TTL_MINUTES", "30"), 30)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
