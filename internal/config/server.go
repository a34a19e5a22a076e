// Package config provides configuration management for the tenancy service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// minSessionSecretLen is the shortest SESSION_SECRET accepted.
const minSessionSecretLen = 32

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment   Environment
	ListenAddr    string
	DatabaseURL   string
	RedisURL      string
	SessionSecret string

	// SessionPreviousSecrets are retired signing keys still accepted on read.
	SessionPreviousSecrets []string
	SessionMaxAge          int // session lifetime in seconds (default: 86400)
	BaseURL                string
	CORSOrigins            []string

	InvitationTTL           time.Duration
	InvitationSweepSchedule string

	RateLimitPolicyFile string
	GlobalRateLimit     int64
	GlobalRatePeriod    string

	// TrustedIdentityHeader names a header set by an authenticating proxy.
	// Empty disables header-based identity.
	TrustedIdentityHeader string
}

// LoadDotEnv loads variables from the given .env files (default ".env") into the
// process environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	sessionMaxAge := getEnvInt("SESSION_MAX_AGE", 86400)
	if sessionMaxAge < 0 {
		sessionMaxAge = 86400
	}

	globalLimit := int64(getEnvInt("GLOBAL_RATE_LIMIT", 300))
	if globalLimit <= 0 {
		globalLimit = 300
	}

	return ServerConfig{
		Environment:             env,
		ListenAddr:              getEnvString("LISTEN_ADDR", ":8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                getEnvString("REDIS_URL", "redis://localhost:6379/0"),
		SessionSecret:           os.Getenv("SESSION_SECRET"),
		SessionPreviousSecrets:  getEnvList("SESSION_PREVIOUS_SECRETS"),
		SessionMaxAge:           sessionMaxAge,
		BaseURL:                 strings.TrimSuffix(getEnvString("BASE_URL", "http://localhost:8080"), "/"),
		CORSOrigins:             getEnvList("CORS_ORIGINS"),
		InvitationTTL:           getEnvDuration("INVITATION_TTL", 7*24*time.Hour),
		InvitationSweepSchedule: getEnvString("INVITATION_SWEEP_SCHEDULE", "@every 15m"),
		RateLimitPolicyFile:     os.Getenv("RATE_LIMIT_POLICY_FILE"),
		GlobalRateLimit:         globalLimit,
		GlobalRatePeriod:        getEnvString("GLOBAL_RATE_PERIOD", "1m"),
		TrustedIdentityHeader:   strings.TrimSpace(os.Getenv("TRUSTED_IDENTITY_HEADER")),
	}
}

// Validate checks the settings the server cannot start without.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(c.SessionSecret) < minSessionSecretLen {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen))
	}
	for i, prev := range c.SessionPreviousSecrets {
		if len(prev) < minSessionSecretLen {
			errs = append(errs, fmt.Errorf("SESSION_PREVIOUS_SECRETS[%d] must be at least %d bytes", i, minSessionSecretLen))
		}
	}
	if c.Environment == EnvProduction && len(c.CORSOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ORIGINS must be set in production"))
	}
	if _, err := time.ParseDuration(c.GlobalRatePeriod); err != nil {
		errs = append(errs, fmt.Errorf("GLOBAL_RATE_PERIOD: %w", err))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs in production.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

func getEnvString(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvDuration reads a positive duration, returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
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

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
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
