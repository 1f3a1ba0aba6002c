package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"multcheck/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database   DatabaseConfig
	Correction CorrectionConfig
	Export     ExportConfig
}

// DatabaseConfig holds the session store connection settings
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// CorrectionConfig holds correction engine defaults
type CorrectionConfig struct {
	DefaultAlpha         float64       // significance level used when callers pass none
	BootstrapIterations  int           // resamples for the bootstrap pi0 estimator
	BootstrapTimeout     time.Duration // wall-clock budget before degrading to the point estimate
	BootstrapConcurrency int           // parallel resample workers
}

// ExportConfig holds export output settings
type ExportConfig struct {
	OutputDir string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	// Optional .env seed for local development; absence is not an error
	_ = godotenv.Load()

	config := &Config{}

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}
	config.Database = *dbConfig

	corrConfig, err := loadCorrectionConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load correction configuration")
	}
	config.Correction = *corrConfig

	config.Export = ExportConfig{
		OutputDir: getEnv("EXPORT_DIR", "exports"),
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	return &DatabaseConfig{
		URL:     getEnv("DATABASE_URL", ""),
		SSLMode: getEnv("DATABASE_SSLMODE", "disable"),
	}, nil
}

func loadCorrectionConfig() (*CorrectionConfig, error) {
	alpha, err := getEnvFloat("CORRECTION_ALPHA", 0.05)
	if err != nil {
		return nil, errors.ConfigInvalid("CORRECTION_ALPHA must be a number")
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, errors.ConfigInvalid("CORRECTION_ALPHA must be in (0, 1)")
	}

	iterations, err := getEnvInt("BOOTSTRAP_ITERATIONS", 1000)
	if err != nil {
		return nil, errors.ConfigInvalid("BOOTSTRAP_ITERATIONS must be an integer")
	}
	if iterations < 100 {
		iterations = 100
	}
	if iterations > 10000 {
		iterations = 10000
	}

	timeoutMs, err := getEnvInt("BOOTSTRAP_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, errors.ConfigInvalid("BOOTSTRAP_TIMEOUT_MS must be an integer")
	}

	workers, err := getEnvInt("BOOTSTRAP_CONCURRENCY", 4)
	if err != nil {
		return nil, errors.ConfigInvalid("BOOTSTRAP_CONCURRENCY must be an integer")
	}
	if workers < 1 {
		workers = 1
	}

	return &CorrectionConfig{
		DefaultAlpha:         alpha,
		BootstrapIterations:  iterations,
		BootstrapTimeout:     time.Duration(timeoutMs) * time.Millisecond,
		BootstrapConcurrency: workers,
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}
