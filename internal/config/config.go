// Package config loads runtime settings from the environment, with an
// optional .env file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/courtside/internal/identity"
)

type Config struct {
	Port     string
	DBPath   string
	BaseURL  string
	LogLevel string
	// LogFormat is "text" or "json".
	LogFormat string

	// SessionSecret signs the session-flags cookie.
	SessionSecret string
	// EphemeralSecret is set when SessionSecret was generated at startup.
	EphemeralSecret bool
	SecureCookies   bool
	OriginPatterns  []string

	SportsFile string

	// NATSURL enables the cross-instance relay when set.
	NATSURL string
	// CORSOrigins may read the public game API from other sites.
	CORSOrigins []string

	PostmarkToken string
	EmailFrom     string

	OAuth identity.OAuthConfig

	CleanupInterval time.Duration
	RateLimit       int
}

// Load reads .env (if present) and then the COURTSIDE_* variables.
// Variables already set in the environment win over .env.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	port := getEnv("COURTSIDE_PORT", "8080")
	cfg := &Config{
		Port:          port,
		DBPath:        getEnv("COURTSIDE_DB_PATH", "courtside.db"),
		BaseURL:       strings.TrimRight(getEnv("COURTSIDE_BASE_URL", "http://localhost:"+port), "/"),
		LogLevel:      getEnv("COURTSIDE_LOG_LEVEL", "info"),
		LogFormat:     getEnv("COURTSIDE_LOG_FORMAT", "text"),
		SessionSecret: os.Getenv("COURTSIDE_SESSION_SECRET"),
		SecureCookies: getEnvAsBool("COURTSIDE_SECURE_COOKIES", false),
		SportsFile:    os.Getenv("COURTSIDE_SPORTS_FILE"),
		NATSURL:       os.Getenv("COURTSIDE_NATS_URL"),
		CORSOrigins:   []string{"*"},
		PostmarkToken: os.Getenv("COURTSIDE_POSTMARK_TOKEN"),
		EmailFrom:     getEnv("COURTSIDE_EMAIL_FROM", "noreply@courtside.local"),
		OAuth: identity.OAuthConfig{
			ClientID:     os.Getenv("COURTSIDE_OAUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("COURTSIDE_OAUTH_CLIENT_SECRET"),
			AuthURL:      os.Getenv("COURTSIDE_OAUTH_AUTH_URL"),
			TokenURL:     os.Getenv("COURTSIDE_OAUTH_TOKEN_URL"),
			UserInfoURL:  os.Getenv("COURTSIDE_OAUTH_USERINFO_URL"),
		},
		CleanupInterval: getEnvAsDuration("COURTSIDE_CLEANUP_INTERVAL", time.Hour),
		RateLimit:       getEnvAsInt("COURTSIDE_RATE_LIMIT", 10),
	}
	cfg.OAuth.RedirectURL = cfg.BaseURL + "/auth/federated/callback"
	if scopes := os.Getenv("COURTSIDE_OAUTH_SCOPES"); scopes != "" {
		cfg.OAuth.Scopes = strings.Fields(strings.ReplaceAll(scopes, ",", " "))
	}
	if origins := os.Getenv("COURTSIDE_ORIGIN_PATTERNS"); origins != "" {
		cfg.OriginPatterns = strings.Split(origins, ",")
	}

	if origins := os.Getenv("COURTSIDE_CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}

	if cfg.SessionSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		cfg.SessionSecret = hex.EncodeToString(b)
		cfg.EphemeralSecret = true
	}
	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("COURTSIDE_RATE_LIMIT must be positive, got %d", cfg.RateLimit)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("COURTSIDE_CLEANUP_INTERVAL must be positive, got %s", cfg.CleanupInterval)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
