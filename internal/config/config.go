package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cron "github.com/robfig/cron/v3"
)

// Config holds all corvid configuration from environment variables, with an
// optional YAML overlay file (CORVID_CONFIG_FILE) on top.
type Config struct {
	// HTTP
	ListenAddr string

	// Relying party
	RPID      string
	RPName    string
	RPOrigins []string
	SignInURL string

	// Sessions and tokens
	SessionExpiry time.Duration
	CookieSecure  bool
	TokenSecret   string // hex; empty = random per process

	// Storage
	DBPath string

	// Background sweeps
	SweepSchedule string // cron expression

	// Logging
	LogJSON bool
}

// Load reads all configuration from environment variables with defaults and
// applies the YAML overlay file when CORVID_CONFIG_FILE is set.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    envStr("CORVID_LISTEN_ADDR", ":8080"),
		RPID:          envStr("CORVID_RP_ID", "localhost"),
		RPName:        envStr("CORVID_RP_NAME", "Corvid"),
		RPOrigins:     splitList(envStr("CORVID_RP_ORIGINS", "http://localhost:8080")),
		SignInURL:     envStr("CORVID_SIGNIN_URL", "/user/signin"),
		SessionExpiry: envDuration("CORVID_SESSION_EXPIRY", 720*time.Hour),
		CookieSecure:  envBool("CORVID_COOKIE_SECURE", true),
		TokenSecret:   envStr("CORVID_TOKEN_SECRET", ""),
		DBPath:        envStr("CORVID_DB_PATH", "/data/corvid.db"),
		SweepSchedule: envStr("CORVID_SWEEP_SCHEDULE", "@every 1m"),
		LogJSON:       envBool("CORVID_LOG_JSON", true),
	}

	if path := os.Getenv("CORVID_CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.RPID == "" {
		errs = append(errs, fmt.Errorf("CORVID_RP_ID must not be empty"))
	}
	if len(c.RPOrigins) == 0 {
		errs = append(errs, fmt.Errorf("CORVID_RP_ORIGINS must list at least one origin"))
	}
	if c.SessionExpiry <= 0 {
		errs = append(errs, fmt.Errorf("CORVID_SESSION_EXPIRY must be > 0, got %s", c.SessionExpiry))
	}
	if c.TokenSecret != "" {
		if _, err := hex.DecodeString(c.TokenSecret); err != nil {
			errs = append(errs, fmt.Errorf("CORVID_TOKEN_SECRET must be hex: %v", err))
		}
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("CORVID_SWEEP_SCHEDULE invalid: %v", err))
	}
	return errors.Join(errs...)
}

// TokenSecretBytes decodes the configured secret. Returns nil when no
// secret is configured; callers fall back to a random per-process one.
func (c *Config) TokenSecretBytes() []byte {
	if c.TokenSecret == "" {
		return nil
	}
	b, err := hex.DecodeString(c.TokenSecret)
	if err != nil {
		return nil
	}
	return b
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
