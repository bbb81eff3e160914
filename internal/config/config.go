/**
 * Configuration for the floor scan worker
 *
 * Loads configuration from environment variables matching .env.floorscan
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adverant/nexus/floorscan-worker/internal/verify"
)

// Queue backends
const (
	QueueBackendRedis = "redis"
	QueueBackendAsynq = "asynq"
)

// Scan modes
const (
	ScanModePerCard    = "per-card"
	ScanModeWholeFloor = "whole-floor"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// Qdrant vector database configuration (catalog name index)
	QdrantURL        string
	QdrantCollection string

	// Service URLs
	VisionURL         string
	FileProcessAPIURL string // FileProcess API for failed-region artifacts

	// Queue configuration
	QueueBackend      string
	QueueName         string
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds

	// Pipeline configuration
	ScanMode                string
	RecognizerTimeoutMs     int
	MaxParallelRegions      int
	VerificationMargin      float64
	SolverMargin            float64
	AutoApplyThreshold      float64
	MaxPairSearchTraits     int
	MinStructuredConfidence float64
	MinOCRConfidence        float64

	// Tesseract configuration
	TesseractLanguage string

	// Optional JSON catalog; when empty the catalog is loaded from Postgres
	CatalogPath string

	// Node environment
	NodeEnv string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:                getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		DatabaseURL:             getEnvOrThrow("DATABASE_URL"),
		QdrantURL:               getEnvOrDefault("QDRANT_URL", "nexus-qdrant:6334"),
		QdrantCollection:        getEnvOrDefault("QDRANT_COLLECTION", "floorscan_catalog"),
		VisionURL:               getEnvOrDefault("VISION_URL", "http://nexus-mageagent:8080"),
		FileProcessAPIURL:       getEnvOrDefault("FILEPROCESS_API_URL", "http://nexus-fileprocess-api:8096"),
		QueueBackend:            getEnvOrDefault("QUEUE_BACKEND", QueueBackendRedis),
		QueueName:               getEnvOrDefault("QUEUE_NAME", "floorscan:jobs"),
		WorkerConcurrency:       getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:       getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 120000), // 2 minutes
		ScanMode:                getEnvOrDefault("SCAN_MODE", ScanModePerCard),
		RecognizerTimeoutMs:     getEnvAsIntOrDefault("RECOGNIZER_TIMEOUT_MS", 30000),
		MaxParallelRegions:      getEnvAsIntOrDefault("MAX_PARALLEL_REGIONS", 5),
		VerificationMargin:      getEnvAsFloatOrDefault("VERIFICATION_MARGIN", 0.10),
		SolverMargin:            getEnvAsFloatOrDefault("SOLVER_MARGIN", 0.15),
		AutoApplyThreshold:      getEnvAsFloatOrDefault("AUTO_APPLY_THRESHOLD", 0.85),
		MaxPairSearchTraits:     getEnvAsIntOrDefault("MAX_PAIR_SEARCH_TRAITS", 64),
		MinStructuredConfidence: getEnvAsFloatOrDefault("MIN_STRUCTURED_CONFIDENCE", 0.2),
		MinOCRConfidence:        getEnvAsFloatOrDefault("MIN_OCR_CONFIDENCE", 0.2),
		TesseractLanguage:       getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		CatalogPath:             getEnvOrDefault("CATALOG_PATH", ""),
		NodeEnv:                 getEnvOrDefault("NODE_ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.QueueBackend != QueueBackendRedis && c.QueueBackend != QueueBackendAsynq {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendRedis, QueueBackendAsynq, c.QueueBackend)
	}

	if c.ScanMode != ScanModePerCard && c.ScanMode != ScanModeWholeFloor {
		return fmt.Errorf("SCAN_MODE must be %q or %q, got %q", ScanModePerCard, ScanModeWholeFloor, c.ScanMode)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxParallelRegions < 1 || c.MaxParallelRegions > 16 {
		return fmt.Errorf("MAX_PARALLEL_REGIONS must be between 1 and 16, got %d", c.MaxParallelRegions)
	}

	if c.VerificationMargin <= 0 || c.VerificationMargin >= 1 {
		return fmt.Errorf("VERIFICATION_MARGIN must be in (0, 1), got %v", c.VerificationMargin)
	}

	if c.SolverMargin <= 0 || c.SolverMargin >= 1 {
		return fmt.Errorf("SOLVER_MARGIN must be in (0, 1), got %v", c.SolverMargin)
	}

	if c.AutoApplyThreshold <= 0 || c.AutoApplyThreshold > 1 {
		return fmt.Errorf("AUTO_APPLY_THRESHOLD must be in (0, 1], got %v", c.AutoApplyThreshold)
	}

	if c.MaxPairSearchTraits < 0 {
		return fmt.Errorf("MAX_PAIR_SEARCH_TRAITS must not be negative, got %d", c.MaxPairSearchTraits)
	}

	return nil
}

// RecognizerTimeout returns the per-call recognizer timeout
func (c *Config) RecognizerTimeout() time.Duration {
	return time.Duration(c.RecognizerTimeoutMs) * time.Millisecond
}

// VerifyOptions maps the verification and solver tunables.
func (c *Config) VerifyOptions() verify.Options {
	opts := verify.DefaultOptions()
	opts.Margin = c.VerificationMargin
	opts.Solver.AcceptMargin = c.SolverMargin
	opts.Solver.AutoApplyThreshold = c.AutoApplyThreshold
	opts.Solver.MaxPairSearchTraits = c.MaxPairSearchTraits
	return opts
}

// JobTimeout returns the per-job processing timeout
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or returns error
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
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

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
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
