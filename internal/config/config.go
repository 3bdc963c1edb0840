// Package config loads runtime configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	DBPath   string
	BaseURL  string
	LogLevel string

	// Postmark
	EmailToken string
	EmailFrom  string

	// Backup
	BackupBucket     string
	BackupEndpoint   string
	BackupRegion     string
	BackupAccessKey  string
	BackupSecretKey  string
	BackupPassphrase string
	BackupInterval   time.Duration
}

// Load reads the environment, after merging a .env file when one exists.
// Missing optional values fall back to defaults; a malformed value is an
// error rather than a silent fallback.
func Load() (Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Port:     getEnv("MIZAN_PORT", "8080"),
		DBPath:   getEnv("MIZAN_DB_PATH", "mizan.db"),
		BaseURL:  getEnv("MIZAN_BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("MIZAN_LOG_LEVEL", "info"),

		EmailToken: os.Getenv("MIZAN_POSTMARK_TOKEN"),
		EmailFrom:  os.Getenv("MIZAN_EMAIL_FROM"),

		BackupBucket:     os.Getenv("MIZAN_BACKUP_BUCKET"),
		BackupEndpoint:   os.Getenv("MIZAN_BACKUP_ENDPOINT"),
		BackupRegion:     getEnv("MIZAN_BACKUP_REGION", "us-east-1"),
		BackupAccessKey:  os.Getenv("MIZAN_BACKUP_ACCESS_KEY"),
		BackupSecretKey:  os.Getenv("MIZAN_BACKUP_SECRET_KEY"),
		BackupPassphrase: os.Getenv("MIZAN_BACKUP_PASSPHRASE"),
	}

	hours, err := getEnvInt("MIZAN_BACKUP_INTERVAL_HOURS", 24)
	if err != nil {
		return Config{}, err
	}
	cfg.BackupInterval = time.Duration(hours) * time.Hour

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
