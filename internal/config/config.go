package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfigurationMissing is returned when a required variable is absent.
var ErrConfigurationMissing = errors.New("configuration missing")

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Gemini AI
	GoogleAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int

	// Sessions
	SessionSecret      string
	SessionIdleTimeout time.Duration
	HistoryLimit       int

	// Redis (optional, enables cross-replica fan-out)
	RedisURL string

	// Rate limiting
	ChatRateLimit int

	// UI
	PageTitle  string
	PageHeader string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	apiKey, err := requireEnv("GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		GoogleAPIKey:         apiKey,
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-pro"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		SessionSecret:        getEnvOrDefault("SESSION_SECRET", ""),
		SessionIdleTimeout:   getEnvAsDurationOrDefault("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		HistoryLimit:         getEnvAsIntOrDefault("HISTORY_LIMIT", 0),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		ChatRateLimit:        getEnvAsIntOrDefault("CHAT_RATE_LIMIT", 30),
		PageTitle:            getEnvOrDefault("PAGE_TITLE", "Gemini AI Chatbot"),
		PageHeader:           getEnvOrDefault("PAGE_HEADER", "Arqam AI Chatbot"),
	}

	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}

	// Tokens signed with a per-process secret die with the process, which
	// matches the transcripts they point at.
	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
	}

	return cfg, nil
}

// IsDevelopment reports whether human-readable logs should be used.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func requireEnv(key string) (string, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return "", fmt.Errorf("%w: %s is not set, please set %s in environment variables", ErrConfigurationMissing, key, key)
	}
	return val, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
