package config

import (
	"fmt"
	"os"
	"strings"
)

// DefaultSecretKey is the fallback token signing key. It is public knowledge
// and therefore insecure; the server warns loudly when running with it.
const DefaultSecretKey = "secret"

// Config holds server configuration loaded from the environment.
type Config struct {
	Addr           string
	DBPath         string
	SecretKey      string
	AllowedOrigins []string
}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() (Config, error) {
	cfg := Config{
		Addr:           getEnv("HTTP_ADDR", ":8000"),
		DBPath:         getEnv("DB_PATH", "expenses.db"),
		SecretKey:      getEnv("SECRET_KEY", DefaultSecretKey),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	if cfg.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("DB_PATH must not be empty")
	}
	if cfg.SecretKey == "" {
		return Config{}, fmt.Errorf("SECRET_KEY must not be empty")
	}

	return cfg, nil
}

// InsecureSecret reports whether the server is running with the default
// signing key.
func (c Config) InsecureSecret() bool {
	return c.SecretKey == DefaultSecretKey
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
