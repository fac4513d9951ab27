package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	MetricsAddr   string
	StorageDriver string
	SQLitePath    string
	ProcessCron   string
	SigningSecret string
}

func Load() (*Config, error) {
	// .env file is optional in production.
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:      getEnvOrDefault("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnvOrDefault("METRICS_ADDR", ":9090"),
		StorageDriver: getEnvOrDefault("STORAGE_DRIVER", "memory"),
		SQLitePath:    getEnvOrDefault("SQLITE_PATH", "data/obligations.db"),
		ProcessCron:   getEnvOrDefault("PROCESS_CRON", "@hourly"),
		SigningSecret: os.Getenv("SIGNING_SECRET"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
