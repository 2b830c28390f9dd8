/**
 * Configuration for the OCR worker
 *
 * Loads configuration from environment variables (optionally seeded from .env)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Queue backends
const (
	QueueBackendAsynq = "asynq"
	QueueBackendRedis = "redis"
	QueueBackendNone  = "none"
)

// Config holds worker configuration
type Config struct {
	// HTTP API
	HTTPAddr string
	GinMode  string

	// Redis / queue configuration
	RedisURL          string
	QueueName         string
	QueueBackend      string
	WorkerConcurrency int
	MaxRetries        int
	ProcessingTimeout time.Duration

	// PostgreSQL configuration (optional, enables job persistence)
	DatabaseURL string

	// Image loading
	DownloadTimeout time.Duration
	MaxImageSize    int64

	// Tesseract models
	TessdataPrefix string
	UseBundled     bool
	BundledDir     string

	// S3 content references
	S3Enabled bool
	AWSRegion string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Missing .env files are fine; the environment still applies
		_ = godotenv.Load(f)
	}
	return LoadConfig()
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:          getEnvOrDefault("HTTP_ADDR", ":8080"),
		GinMode:           getEnvOrDefault("GIN_MODE", "release"),
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "ocr:jobs"),
		QueueBackend:      strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", QueueBackendNone)),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxRetries:        getEnvAsIntOrDefault("QUEUE_MAX_RETRIES", 3),
		ProcessingTimeout: getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", 2*time.Minute),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		DownloadTimeout:   getEnvAsDurationOrDefault("DOWNLOAD_TIMEOUT", 15*time.Second),
		MaxImageSize:      getEnvAsInt64OrDefault("MAX_IMAGE_SIZE", 50*1024*1024), // 50MB
		TessdataPrefix:    getEnvOrDefault("TESSDATA_PREFIX", ""),
		UseBundled:        getEnvAsBoolOrDefault("OCR_USE_BUNDLED", false),
		BundledDir:        getEnvOrDefault("OCR_BUNDLED_DIR", "./tessdata"),
		S3Enabled:         getEnvAsBoolOrDefault("S3_ENABLED", false),
		AWSRegion:         getEnvOrDefault("AWS_REGION", "us-east-1"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "json"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}

	switch c.QueueBackend {
	case QueueBackendAsynq, QueueBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for queue backend %s", c.QueueBackend)
		}
		if c.QueueName == "" {
			return fmt.Errorf("QUEUE_NAME is required for queue backend %s", c.QueueBackend)
		}
	case QueueBackendNone:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be one of asynq, redis, none, got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}

	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("DOWNLOAD_TIMEOUT must be positive, got %v", c.DownloadTimeout)
	}

	if c.MaxImageSize < 1024 || c.MaxImageSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_IMAGE_SIZE must be between 1KB and 1GB, got %d", c.MaxImageSize)
	}

	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive, got %v", c.ProcessingTimeout)
	}

	return nil
}

// TessdataDir returns the directory Tesseract models are read from.
// Bundled models win over TESSDATA_PREFIX; empty means the system default.
func (c *Config) TessdataDir() string {
	if c.UseBundled {
		return c.BundledDir
	}
	return c.TessdataPrefix
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
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

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault accepts Go durations ("15s") or plain milliseconds
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	return defaultValue
}
