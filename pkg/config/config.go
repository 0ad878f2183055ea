package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	LogLevel    string

	// DatabaseDir holds the JSON record collections.
	DatabaseDir string
	// TemplateDir is the pristine bot template copied per instance.
	TemplateDir string
	// StorageDir holds per-tenant instance material.
	StorageDir string

	// BotEntryPoint must exist inside an instance directory before its
	// process starts. BotCommand is the argv used to launch it.
	BotEntryPoint string
	BotCommand    []string
	StartGrace    time.Duration
	StopTimeout   time.Duration

	LinkerBaseURL string
	LinkerTimeout time.Duration

	RedisURL string

	JWTSecret     string
	AdminUsername string
	AdminPassword string

	LivenessInterval     time.Duration
	RosterExpiryInterval time.Duration

	RateLimitPerMinute int

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	startGrace, err := time.ParseDuration(getEnv("BOT_START_GRACE", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_START_GRACE: %w", err)
	}

	stopTimeout, err := time.ParseDuration(getEnv("BOT_STOP_TIMEOUT", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_STOP_TIMEOUT: %w", err)
	}

	linkerTimeout, err := time.ParseDuration(getEnv("LINKER_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LINKER_TIMEOUT: %w", err)
	}

	livenessInterval, err := time.ParseDuration(getEnv("LIVENESS_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LIVENESS_INTERVAL: %w", err)
	}

	rosterExpiryInterval, err := time.ParseDuration(getEnv("ROSTER_EXPIRY_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROSTER_EXPIRY_INTERVAL: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	linkerBaseURL := os.Getenv("LINKER_BASE_URL")
	if linkerBaseURL == "" {
		return nil, fmt.Errorf("LINKER_BASE_URL is required")
	}

	return &Config{
		Environment:          getEnv("ENVIRONMENT", "development"),
		ServerPort:           port,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseDir:          getEnv("DATABASE_DIR", "data/db"),
		TemplateDir:          getEnv("TEMPLATE_DIR", "data/template"),
		StorageDir:           getEnv("STORAGE_DIR", "data/storage"),
		BotEntryPoint:        getEnv("BOT_ENTRY_POINT", "main.py"),
		BotCommand:           parseCSVEnv("BOT_COMMAND", []string{"python3", "main.py"}),
		StartGrace:           startGrace,
		StopTimeout:          stopTimeout,
		LinkerBaseURL:        linkerBaseURL,
		LinkerTimeout:        linkerTimeout,
		RedisURL:             os.Getenv("REDIS_URL"),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		LivenessInterval:     livenessInterval,
		RosterExpiryInterval: rosterExpiryInterval,
		RateLimitPerMinute:   rateLimit,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
