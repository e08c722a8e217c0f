package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port          int
	NatsURL       string
	NatsToken     string
	DatabaseURL   string
	LogLevel      string
	APIToken      string
	KnowledgeFile string
	NoiseFloor    float64
	HistoryLimit  int
}

// Load reads the configuration from the environment. NATS_URL and
// DATABASE_URL are optional: without them the service runs API-only with
// in-memory state.
func Load() Config {
	return Config{
		Port:          envInt("LUCID_PORT", 8850),
		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		DatabaseURL:   envStr("DATABASE_URL", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		APIToken:      envStr("LUCID_API_TOKEN", ""),
		KnowledgeFile: envStr("LUCID_KNOWLEDGE_FILE", ""),
		NoiseFloor:    envFloat("LUCID_NOISE_FLOOR", 0.05),
		HistoryLimit:  envInt("LUCID_HISTORY_LIMIT", 50),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
