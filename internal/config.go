package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Application base URL, sent to the backend as the checkout origin so
	// the payment provider redirects back to the right host.
	BaseURL string

	// Backend API configuration
	BackendURL     string
	BackendTimeout time.Duration

	// Session configuration
	SessionTTL    time.Duration
	MaxSessions   int
	SecureCookies bool

	// Checkout polling configuration
	CheckoutPollInterval time.Duration
	CheckoutPollAttempts int

	// Admin access control
	AdminEmails []string // List of email addresses allowed into the console

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Base URL defaults to localhost for development
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),

		// Session defaults
		SessionTTL:    getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		MaxSessions:   getEnvInt("MAX_SESSIONS", 16384),
		SecureCookies: getEnvBool("SECURE_COOKIES", false),

		// Checkout polling defaults
		CheckoutPollInterval: getEnvDuration("CHECKOUT_POLL_INTERVAL", 2*time.Second),
		CheckoutPollAttempts: getEnvInt("CHECKOUT_POLL_ATTEMPTS", 5),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse admin emails from comma-separated environment variable
	adminEmailsStr := getEnv("ADMIN_EMAILS", "")
	if adminEmailsStr != "" {
		emails := strings.Split(adminEmailsStr, ",")
		for _, email := range emails {
			trimmed := strings.TrimSpace(strings.ToLower(email))
			if trimmed != "" {
				cfg.AdminEmails = append(cfg.AdminEmails, trimmed)
			}
		}
	}

	// Required
	cfg.BackendURL = os.Getenv("BACKEND_URL")
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}

	if cfg.CheckoutPollAttempts < 1 {
		return nil, fmt.Errorf("CHECKOUT_POLL_ATTEMPTS must be at least 1, got: %d", cfg.CheckoutPollAttempts)
	}
	if cfg.CheckoutPollInterval <= 0 {
		return nil, fmt.Errorf("CHECKOUT_POLL_INTERVAL must be positive, got: %s", cfg.CheckoutPollInterval)
	}

	// Production should not hand out cookies over plain HTTP
	if cfg.Env == "production" && !cfg.SecureCookies {
		cfg.SecureCookies = true
	}

	return cfg, nil
}

// IsAdmin reports whether email is in the configured admin list.
func (c *Config) IsAdmin(email string) bool {
	needle := strings.ToLower(strings.TrimSpace(email))
	for _, admin := range c.AdminEmails {
		if admin == needle {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
