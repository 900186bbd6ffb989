// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the knobs shared by the API adapter and the worker pool,
// which run in the same process.
type Config struct {
	Env         string
	HTTPPort    string
	MetricsAddr string

	DBPath     string
	DBPoolSize int

	WorkerCount     int
	LeaseSeconds    int
	ReaperInterval  time.Duration
	Batch           int
	MaxRetries      int
	RestartBackoff  time.Duration
	ShutdownGrace   time.Duration
	MaxTextBytes    int64
	FaultRate       float64
	WorkDelay       time.Duration
	QueueCapacity   int
}

// Load reads configuration from environment variables with sane
// defaults for local development.
func Load() Config {
	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		DBPath:     getEnv("DB_PATH", "jobqueue.db"),
		DBPoolSize: getEnvInt("DB_POOL_SIZE", 8),

		WorkerCount:    getEnvInt("WORKER_COUNT", 1),
		LeaseSeconds:   getEnvInt("LEASE_SECONDS", 30),
		ReaperInterval: time.Duration(getEnvInt("REAPER_INTERVAL", 5)) * time.Second,
		Batch:          getEnvInt("BATCH", 100),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RestartBackoff: time.Duration(getEnvInt("RESTART_BACKOFF", 1)) * time.Second,
		ShutdownGrace:  time.Duration(getEnvInt("SHUTDOWN_GRACE", 10)) * time.Second,
		MaxTextBytes:   getEnvInt64("MAX_TEXT_BYTES", 1048576),
		FaultRate:      getEnvFloat("FAULT_RATE", 0),
		WorkDelay:      time.Duration(getEnvInt("WORK_DELAY_MS", 2000)) * time.Millisecond,
		QueueCapacity:  getEnvInt("QUEUE_CAPACITY", 10000),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
