package main

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Values come from an optional
// YAML file, then environment variables, then command flags.
type Config struct {
	DataRoot         string `yaml:"data_root"`
	HFToken          string `yaml:"hf_token"`
	S3Region         string `yaml:"s3_region"`
	S3Endpoint       string `yaml:"s3_endpoint"` // For testing with MinIO
	DatabaseURL      string `yaml:"database_url"`
	Port             string `yaml:"port"`
	LogLevel         string `yaml:"log_level"`
	NormalizeUnicode bool   `yaml:"normalize_unicode"`
	MaxLineBytes     int    `yaml:"max_line_bytes"`
	ParallelSplits   int    `yaml:"parallel_splits"`
}

func defaultConfig() *Config {
	return &Config{
		DataRoot:       ".",
		S3Region:       "us-east-1",
		Port:           "8080",
		LogLevel:       "info",
		ParallelSplits: 3,
	}
}

// loadConfig reads path (if set) over the defaults and applies environment
// overrides.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.DataRoot = getEnvOrDefault("DISCOEVAL_DATA_ROOT", c.DataRoot)
	c.HFToken = getEnvOrDefault("HF_TOKEN", c.HFToken)
	c.S3Region = getEnvOrDefault("S3_REGION", c.S3Region)
	c.S3Endpoint = getEnvOrDefault("S3_ENDPOINT", c.S3Endpoint)
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.NormalizeUnicode = getBoolEnv("NORMALIZE_UNICODE", c.NormalizeUnicode)
	c.MaxLineBytes = getIntEnvOrDefault("MAX_LINE_BYTES", c.MaxLineBytes)
	c.ParallelSplits = getIntEnvOrDefault("PARALLEL_SPLITS", c.ParallelSplits)
}

// newLogger builds a production zap logger at the configured level; verbose
// forces debug.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return fallback
}
