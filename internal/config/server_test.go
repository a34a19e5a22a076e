package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfig_DefaultEnvironment(t *testing.T) {
	os.Unsetenv("ENV")
	cfg := LoadServerConfig()
	if cfg.Environment != EnvDevelopment {
		t.Errorf("expected %q, got %q", EnvDevelopment, cfg.Environment)
	}
}

func TestLoadServerConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("ENV", "invalid")
	cfg := LoadServerConfig()
	if cfg.Environment != EnvDevelopment {
		t.Errorf("expected %q for invalid ENV, got %q", EnvDevelopment, cfg.Environment)
	}
}

func TestLoadServerConfig_ValidEnvironments(t *testing.T) {
	tests := []struct {
		env  string
		want Environment
	}{
		{"development", EnvDevelopment},
		{"staging", EnvStaging},
		{"production", EnvProduction},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			cfg := LoadServerConfig()
			if cfg.Environment != tt.want {
				t.Errorf("expected %q, got %q", tt.want, cfg.Environment)
			}
		})
	}
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	for _, key := range []string{"LISTEN_ADDR", "REDIS_URL", "BASE_URL", "CORS_ORIGINS", "INVITATION_TTL",
		"INVITATION_SWEEP_SCHEDULE", "GLOBAL_RATE_LIMIT", "GLOBAL_RATE_PERIOD", "TRUSTED_IDENTITY_HEADER"} {
		t.Setenv(key, "")
	}

	cfg := LoadServerConfig()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected listen addr :8080, got %q", cfg.ListenAddr)
	}
	if cfg.InvitationTTL != 7*24*time.Hour {
		t.Errorf("expected 7 day invitation TTL, got %v", cfg.InvitationTTL)
	}
	if cfg.InvitationSweepSchedule != "@every 15m" {
		t.Errorf("expected default sweep schedule, got %q", cfg.InvitationSweepSchedule)
	}
	if cfg.GlobalRateLimit != 300 || cfg.GlobalRatePeriod != "1m" {
		t.Errorf("expected 300/1m global limit, got %d/%s", cfg.GlobalRateLimit, cfg.GlobalRatePeriod)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Errorf("expected no CORS origins, got %v", cfg.CORSOrigins)
	}
	if cfg.TrustedIdentityHeader != "" {
		t.Errorf("expected identity header disabled, got %q", cfg.TrustedIdentityHeader)
	}
}

func TestLoadServerConfig_Overrides(t *testing.T) {
	t.Setenv("BASE_URL", "https://tenancy.example.com/")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, ,https://admin.example.com")
	t.Setenv("INVITATION_TTL", "48h")
	t.Setenv("GLOBAL_RATE_LIMIT", "50")

	cfg := LoadServerConfig()
	if cfg.BaseURL != "https://tenancy.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.example.com" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
	if cfg.InvitationTTL != 48*time.Hour {
		t.Errorf("expected 48h TTL, got %v", cfg.InvitationTTL)
	}
	if cfg.GlobalRateLimit != 50 {
		t.Errorf("expected global limit 50, got %d", cfg.GlobalRateLimit)
	}
}

func TestLoadServerConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("INVITATION_TTL", "-1h")
	t.Setenv("GLOBAL_RATE_LIMIT", "zero")
	t.Setenv("SESSION_MAX_AGE", "-5")

	cfg := LoadServerConfig()
	if cfg.InvitationTTL != 7*24*time.Hour {
		t.Errorf("expected default TTL, got %v", cfg.InvitationTTL)
	}
	if cfg.GlobalRateLimit != 300 {
		t.Errorf("expected default global limit, got %d", cfg.GlobalRateLimit)
	}
	if cfg.SessionMaxAge != 86400 {
		t.Errorf("expected default session max age, got %d", cfg.SessionMaxAge)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	valid := ServerConfig{
		Environment:      EnvDevelopment,
		DatabaseURL:      "postgres://localhost/tenancy",
		SessionSecret:    strings.Repeat("s", 32),
		GlobalRatePeriod: "1m",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := valid
	bad.DatabaseURL = ""
	bad.SessionSecret = "short"
	bad.GlobalRatePeriod = "often"
	bad.SessionPreviousSecrets = []string{strings.Repeat("p", 32), "old"}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "SESSION_SECRET", "SESSION_PREVIOUS_SECRETS[1]", "GLOBAL_RATE_PERIOD"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}

	prod := valid
	prod.Environment = EnvProduction
	if err := prod.Validate(); err == nil || !strings.Contains(err.Error(), "CORS_ORIGINS") {
		t.Errorf("expected CORS_ORIGINS error in production, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TENANCY_TEST_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TENANCY_TEST_DOTENV", "")
	os.Unsetenv("TENANCY_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}
	if got := os.Getenv("TENANCY_TEST_DOTENV"); got != "loaded" {
		t.Errorf("expected variable from .env, got %q", got)
	}
}
