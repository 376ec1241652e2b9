// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kyiku/tangram-back/internal/snap"
)

// Worker modes.
const (
	WorkerLocal  = "local"
	WorkerRemote = "remote"
	WorkerSync   = "sync"
)

// Config holds the application configuration.
type Config struct {
	Port             string
	AllowedOrigin    string
	AWSRegion        string
	S3Bucket         string
	CloudfrontDomain string
	LevelsKey        string
	LevelsFile       string
	BedrockModelID   string
	NormalizeLevels  bool

	CanvasWidth  int
	CanvasHeight int
	WinTolerance int

	SnapMaxIter   int
	SnapThreshold float64
	SnapOpLimit   int

	WorkerMode string
	WorkerURL  string

	SessionTTL time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigin:    getEnv("ALLOWED_ORIGIN", "http://localhost:5173"),
		AWSRegion:        getEnv("AWS_REGION", "ap-northeast-1"),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		CloudfrontDomain: getEnv("CLOUDFRONT_DOMAIN", ""),
		LevelsKey:        getEnv("LEVELS_KEY", "levels/levels.json"),
		LevelsFile:       getEnv("LEVELS_FILE", ""),
		BedrockModelID:   getEnv("BEDROCK_MODEL_ID", ""),
		WorkerMode:       getEnv("WORKER_MODE", WorkerLocal),
		WorkerURL:        getEnv("WORKER_URL", ""),
	}

	normalize, err := strconv.ParseBool(getEnv("NORMALIZE_LEVELS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid NORMALIZE_LEVELS: %w", err)
	}
	cfg.NormalizeLevels = normalize

	var errs []error
	cfg.CanvasWidth = getEnvInt("CANVAS_WIDTH", 800, &errs)
	cfg.CanvasHeight = getEnvInt("CANVAS_HEIGHT", 600, &errs)
	cfg.WinTolerance = getEnvInt("WIN_TOLERANCE", 3000, &errs)
	cfg.SnapMaxIter = getEnvInt("SNAP_MAX_ITER", 2, &errs)
	cfg.SnapOpLimit = getEnvInt("SNAP_OP_LIMIT", 10000, &errs)
	cfg.SessionTTL = time.Duration(getEnvInt("SESSION_TTL_MINUTES", 60, &errs)) * time.Minute

	threshold, err := strconv.ParseFloat(getEnv("SNAP_THRESHOLD", "24"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid SNAP_THRESHOLD: %w", err))
	}
	cfg.SnapThreshold = threshold

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("invalid port: must be a number")
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 || c.CanvasWidth > 4096 || c.CanvasHeight > 4096 {
		return fmt.Errorf("invalid canvas size %dx%d", c.CanvasWidth, c.CanvasHeight)
	}
	if c.WinTolerance <= 0 {
		return errors.New("invalid win tolerance: must be positive")
	}
	if c.SnapMaxIter <= 0 || c.SnapThreshold <= 0 || c.SnapOpLimit <= 0 {
		return errors.New("invalid snap options: must be positive")
	}
	if c.SessionTTL < 0 {
		return errors.New("invalid session ttl: must not be negative")
	}

	switch c.WorkerMode {
	case WorkerLocal, WorkerSync:
	case WorkerRemote:
		if c.WorkerURL == "" {
			return errors.New("WORKER_URL is required in remote worker mode")
		}
	default:
		return fmt.Errorf("invalid worker mode %q", c.WorkerMode)
	}

	return nil
}

// SnapOptions returns the optimizer options. When requests are computed
// synchronously on the request path, the budget is capped by
// snap.LegacyOptions.
func (c *Config) SnapOptions(synchronous bool) snap.Options {
	opts := snap.Options{
		MaxIterations:  c.SnapMaxIter,
		SnapThreshold:  c.SnapThreshold,
		OperationLimit: c.SnapOpLimit,
	}
	if synchronous {
		legacy := snap.LegacyOptions()
		opts.MaxIterations = min(opts.MaxIterations, legacy.MaxIterations)
		opts.SnapThreshold = min(opts.SnapThreshold, legacy.SnapThreshold)
		opts.OperationLimit = min(opts.OperationLimit, legacy.OperationLimit)
	}
	return opts
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value.
// Parse failures are appended to errs.
func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return n
}
