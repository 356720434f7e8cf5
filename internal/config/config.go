// Package config loads runtime settings for the server and the CLI.
//
// PRECEDENCE (lowest to highest):
//  1. Defaults()
//  2. the YAML file passed with --config, after ${VAR} expansion
//  3. environment variables (RUNQUEST_*, plus PORT, DB_PATH, STRAVA_CLIENT_ID,
//     STRAVA_CLIENT_SECRET and SESSION_SECRET for the usual deploy targets)
//
// Validate runs last, so a bad value fails at startup instead of on the first
// request that needs it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "90s" or "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Strava  StravaConfig  `yaml:"strava"`
	Auth    AuthConfig    `yaml:"auth"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Port            int      `yaml:"port"`
	BaseURL         string   `yaml:"base_url"` // external URL, used to build the OAuth callback
	CookieSecure    bool     `yaml:"cookie_secure"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file
	URL    string `yaml:"url"`    // postgres connection string
}

type StravaConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	CallbackURL  string   `yaml:"callback_url"`
	APIBaseURL   string   `yaml:"api_base_url"`
	Scopes       []string `yaml:"scopes"`
	Timeout      Duration `yaml:"timeout"`
	RateLimit    float64  `yaml:"rate_limit"` // requests per second; 0 disables pacing
	RateBurst    int      `yaml:"rate_burst"`
}

type AuthConfig struct {
	SessionSecret string `yaml:"session_secret"`
	TokenKey      string `yaml:"token_key"` // seals stored OAuth tokens; empty stores them in plain text
}

type SyncConfig struct {
	MinInterval      Duration `yaml:"min_interval"` // 0 disables the policy
	Timeout          Duration `yaml:"timeout"`
	ActivityPageSize int      `yaml:"activity_page_size"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // empty logs to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a configuration that runs locally with only the Strava
// client credentials and a session secret filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{60 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "data/runquest.db",
		},
		Strava: StravaConfig{
			APIBaseURL: "https://www.strava.com/api/v3",
			Scopes:     []string{"read", "activity:read_all", "profile:read_all"},
			Timeout:    Duration{15 * time.Second},
			RateLimit:  5,
			RateBurst:  5,
		},
		Sync: SyncConfig{
			MinInterval:      Duration{5 * time.Minute},
			Timeout:          Duration{30 * time.Second},
			ActivityPageSize: 200,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load builds the configuration from defaults, the optional file at path and
// the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.Strava.CallbackURL == "" {
		base := cfg.Server.BaseURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}
		cfg.Strava.CallbackURL = strings.TrimRight(base, "/") + "/auth/strava/callback"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getIntEnv("PORT", cfg.Server.Port)
	cfg.Server.Port = getIntEnv("RUNQUEST_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("RUNQUEST_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.CookieSecure = getBoolEnv("RUNQUEST_COOKIE_SECURE", cfg.Server.CookieSecure)

	cfg.Storage.Driver = getEnv("RUNQUEST_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Path = getEnv("DB_PATH", cfg.Storage.Path)
	cfg.Storage.Path = getEnv("RUNQUEST_DB_PATH", cfg.Storage.Path)
	cfg.Storage.URL = getEnv("RUNQUEST_DATABASE_URL", cfg.Storage.URL)

	cfg.Strava.ClientID = getEnv("STRAVA_CLIENT_ID", cfg.Strava.ClientID)
	cfg.Strava.ClientSecret = getEnv("STRAVA_CLIENT_SECRET", cfg.Strava.ClientSecret)
	cfg.Strava.CallbackURL = getEnv("RUNQUEST_STRAVA_CALLBACK_URL", cfg.Strava.CallbackURL)
	cfg.Strava.APIBaseURL = getEnv("RUNQUEST_STRAVA_API_URL", cfg.Strava.APIBaseURL)
	if scopes, ok := os.LookupEnv("RUNQUEST_STRAVA_SCOPES"); ok && scopes != "" {
		cfg.Strava.Scopes = splitAndTrim(scopes)
	}

	cfg.Auth.SessionSecret = getEnv("SESSION_SECRET", cfg.Auth.SessionSecret)
	cfg.Auth.SessionSecret = getEnv("RUNQUEST_SESSION_SECRET", cfg.Auth.SessionSecret)
	cfg.Auth.TokenKey = getEnv("RUNQUEST_TOKEN_KEY", cfg.Auth.TokenKey)

	cfg.Sync.MinInterval.Duration = getDurationEnv("RUNQUEST_SYNC_MIN_INTERVAL", cfg.Sync.MinInterval.Duration)
	cfg.Sync.Timeout.Duration = getDurationEnv("RUNQUEST_SYNC_TIMEOUT", cfg.Sync.Timeout.Duration)
	cfg.Sync.ActivityPageSize = getIntEnv("RUNQUEST_ACTIVITY_PAGE_SIZE", cfg.Sync.ActivityPageSize)

	cfg.Logging.Level = getEnv("RUNQUEST_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("RUNQUEST_LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.File = getEnv("RUNQUEST_LOG_FILE", cfg.Logging.File)

	cfg.Metrics.Enabled = getBoolEnv("RUNQUEST_METRICS_ENABLED", cfg.Metrics.Enabled)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.URL == "" {
			return errors.New("storage.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of sqlite, postgres", c.Storage.Driver)
	}

	if c.Auth.TokenKey != "" && len(c.Auth.TokenKey) < 16 {
		return errors.New("auth.token_key must be at least 16 characters")
	}
	if c.Sync.MinInterval.Duration < 0 {
		return errors.New("sync.min_interval must not be negative")
	}
	if c.Sync.ActivityPageSize <= 0 || c.Sync.ActivityPageSize > 200 {
		return fmt.Errorf("sync.activity_page_size %d must be between 1 and 200", c.Sync.ActivityPageSize)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ValidateServer checks the settings that only the HTTP server needs. CLI
// commands that never perform an OAuth exchange skip it.
func (c *Config) ValidateServer() error {
	if c.Strava.ClientID == "" || c.Strava.ClientSecret == "" {
		return errors.New("strava.client_id and strava.client_secret are required")
	}
	if len(c.Auth.SessionSecret) < 16 {
		return errors.New("auth.session_secret must be at least 16 characters")
	}
	return nil
}

// ParseLevel maps a logging.level value onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", level)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
