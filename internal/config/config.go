package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string // postgres:// URL; empty selects SQLite
	DBPath      string // SQLite file used when DatabaseURL is empty
	RedisURL    string

	LLM LLMConfig

	// Summarization pipeline
	ChunkBudget  int
	MaxFoldDepth int
	ScopeLockTTL time.Duration

	// Dashboard
	RateLimitWhitelist    []string // IPs or CIDRs exempt from rate limiting
	DashboardUser         string
	DashboardPasswordHash string // bcrypt hash; empty disables basic auth
}

// LLMConfig holds credentials and endpoints of the completion service.
type LLMConfig struct {
	ClientID           string
	ClientSecret       string
	Scope              string
	AuthURL            string
	APIURL             string
	Model              string
	AuthTimeout        time.Duration
	CompletionTimeout  time.Duration
	InsecureSkipVerify bool
	RestrictionPhrases []string // overrides the built-in refusal phrases when set
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "5001"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "./data/telegram_messages.db"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LLM: LLMConfig{
			// CLIENT_ID / CLIENT_SECRET are the names older deployments used.
			ClientID:           firstEnv("GIGACHAT_CLIENT_ID", "CLIENT_ID"),
			ClientSecret:       firstEnv("GIGACHAT_CLIENT_SECRET", "CLIENT_SECRET"),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			AuthURL:            getEnv("GIGACHAT_AUTH_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"),
			APIURL:             getEnv("GIGACHAT_API_URL", "https://gigachat.devices.sberbank.ru/api/v1"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			AuthTimeout:        getDuration("GIGACHAT_AUTH_TIMEOUT", 30*time.Second),
			CompletionTimeout:  getDuration("GIGACHAT_TIMEOUT", 60*time.Second),
			InsecureSkipVerify: getEnv("GIGACHAT_INSECURE_TLS", "false") == "true",
			RestrictionPhrases: splitList(os.Getenv("RESTRICTION_PHRASES")),
		},
		ChunkBudget:           getInt("CHUNK_BUDGET", 30000),
		MaxFoldDepth:          getInt("MAX_FOLD_DEPTH", 3),
		ScopeLockTTL:          getDuration("SCOPE_LOCK_TTL", 15*time.Minute),
		RateLimitWhitelist:    splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		DashboardUser:         getEnv("DASHBOARD_USER", "admin"),
		DashboardPasswordHash: os.Getenv("DASHBOARD_PASSWORD_HASH"),
	}

	return cfg
}

// ValidateServer checks the settings only the dashboard server needs.
// In production, the dashboard must not be served unauthenticated.
func (c *Config) ValidateServer() error {
	if c.Env == "production" && c.DashboardPasswordHash == "" {
		return errors.New("DASHBOARD_PASSWORD_HASH is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// getDuration accepts Go duration strings ("45s") or plain seconds ("45").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
