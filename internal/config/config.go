package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the guidance engine
type Config struct {
	Debug bool

	// Storage
	SQLitePath   string // embedded single-process store
	DatabaseURL  string // hosted Postgres, empty disables
	AnalyticsURL string // reporting replica, falls back to DatabaseURL

	// RabbitMQ telemetry, empty disables
	RabbitMQURL string

	// Content generation
	Provider        string // ollama, none
	ProviderModel   string
	OllamaURL       string
	GenerateTimeout time.Duration

	// Corpus
	CorpusPath string // YAML alignment table, empty uses the built-in default

	// Engine knobs
	TimeStuckWindow time.Duration
	RetrievalTopK   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Debug:           getEnvBool("DEBUG", false),
		SQLitePath:      getEnv("GUIDANCE_DB_PATH", "./guidance.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		AnalyticsURL:    getEnv("ANALYTICS_DATABASE_URL", ""),
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		Provider:        getEnv("CONTENT_PROVIDER", "none"),
		ProviderModel:   getEnv("CONTENT_MODEL", "llama3"),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		GenerateTimeout: getEnvDuration("GENERATE_TIMEOUT", 8*time.Second),
		CorpusPath:      getEnv("CORPUS_PATH", ""),
		TimeStuckWindow: getEnvDuration("TIME_STUCK_WINDOW", 5*time.Minute),
		RetrievalTopK:   getEnvInt("RETRIEVAL_TOP_K", 3),
	}

	if cfg.AnalyticsURL == "" {
		cfg.AnalyticsURL = cfg.DatabaseURL
	}
	if cfg.RetrievalTopK <= 0 {
		return nil, fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if cfg.TimeStuckWindow <= 0 {
		return nil, fmt.Errorf("TIME_STUCK_WINDOW must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
