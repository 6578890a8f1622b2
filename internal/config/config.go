// Package config loads service configuration from the environment,
// optionally seeded from a .env.local file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string

	// Storage
	PostgresDSN string
	UploadDir   string

	// Executor: "background" runs conversions on detached goroutines,
	// "pool" dispatches through the redis queue to a fixed worker pool.
	Executor           string
	Workers            int
	MaxConversions     int
	RedisAddr          string
	RedisQueueKey      string
	RedisProcessingKey string

	// Converter
	ConverterBin          string
	ConvertTimeoutSeconds int
}

func Load() (*Config, error) {
	// Missing .env.local is fine, env vars win either way.
	_ = godotenv.Load(".env.local")

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),

		Executor:           getEnv("EXECUTOR", "background"),
		Workers:            getEnvAsInt("WORKERS", 3),
		MaxConversions:     getEnvAsInt("MAX_CONVERSIONS", 3),
		RedisAddr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisQueueKey:      getEnv("REDIS_QUEUE_KEY", "conversions:queue"),
		RedisProcessingKey: getEnv("REDIS_PROCESSING_KEY", "conversions:processing"),

		ConverterBin:          getEnv("CONVERTER_BIN", "docling"),
		ConvertTimeoutSeconds: getEnvAsInt("CONVERT_TIMEOUT_SECONDS", 120),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	switch c.Executor {
	case "background", "pool":
	default:
		return fmt.Errorf("EXECUTOR must be \"background\" or \"pool\", got %q", c.Executor)
	}
	if c.Executor == "pool" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when EXECUTOR=pool")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}
	if c.MaxConversions < 1 {
		return fmt.Errorf("MAX_CONVERSIONS must be at least 1")
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
