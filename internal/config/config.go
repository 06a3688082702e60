package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr          string
	DataDir             string
	BaseURL             string
	SessionSecret       string
	Pepper              string
	AdminUser           string
	AdminPassword       string
	WorkerCount         int
	CleanupIntervalMins int
	LogLevel            string
	Env                 string
}

func Load() *Config {
	return &Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		DataDir:             envOr("DATA_DIR", "./data"),
		BaseURL:             envOr("BASE_URL", "http://localhost:8080"),
		SessionSecret:       envOr("SESSION_SECRET", "change-me-in-production-32-bytes!"),
		Pepper:              loadPepper(),
		AdminUser:           envOr("RELABEL_ADMIN_USER", ""),
		AdminPassword:       envOr("RELABEL_ADMIN_PASSWORD", ""),
		WorkerCount:         envIntOr("WORKER_COUNT", 2),
		CleanupIntervalMins: envIntOr("CLEANUP_INTERVAL_MINS", 60),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		Env:                 envOr("ENV", "dev"),
	}
}

// Production returns true when the server runs with ENV=production, which
// makes weak default secrets a startup error instead of a warning.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// loadPepper resolves the server-wide hashing pepper: RELABEL_PEPPER wins,
// then the contents of the file named by RELABEL_PEPPER_FILE, then a dev
// fallback.
func loadPepper() string {
	if v := os.Getenv("RELABEL_PEPPER"); v != "" {
		return v
	}
	if path := os.Getenv("RELABEL_PEPPER_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if v := strings.TrimSpace(string(data)); v != "" {
				return v
			}
		}
	}
	return "dev-pepper"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
