package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment cannot
// leak into a test. t.Setenv restores the original values afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_PATH", "STRAVA_CLIENT_ID", "STRAVA_CLIENT_SECRET", "SESSION_SECRET",
		"RUNQUEST_PORT", "RUNQUEST_BASE_URL", "RUNQUEST_COOKIE_SECURE",
		"RUNQUEST_STORAGE_DRIVER", "RUNQUEST_DB_PATH", "RUNQUEST_DATABASE_URL",
		"RUNQUEST_STRAVA_CALLBACK_URL", "RUNQUEST_STRAVA_API_URL", "RUNQUEST_STRAVA_SCOPES",
		"RUNQUEST_SESSION_SECRET", "RUNQUEST_TOKEN_KEY",
		"RUNQUEST_SYNC_MIN_INTERVAL", "RUNQUEST_SYNC_TIMEOUT", "RUNQUEST_ACTIVITY_PAGE_SIZE",
		"RUNQUEST_LOG_LEVEL", "RUNQUEST_LOG_FORMAT", "RUNQUEST_LOG_FILE", "RUNQUEST_METRICS_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runquest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "data/runquest.db", cfg.Storage.Path)
	assert.Equal(t, 5*time.Minute, cfg.Sync.MinInterval.Duration)
	assert.Equal(t, 200, cfg.Sync.ActivityPageSize)
	assert.Equal(t, "http://localhost:8080/auth/strava/callback", cfg.Strava.CallbackURL)
	assert.Equal(t, []string{"read", "activity:read_all", "profile:read_all"}, cfg.Strava.Scopes)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_STRAVA_SECRET", "from-env")

	path := writeConfig(t, `
server:
  port: 9090
  base_url: "https://runquest.example.com/"
  cookie_secure: true
storage:
  driver: postgres
  url: "postgres://runquest@db/runquest"
strava:
  client_id: "12345"
  client_secret: "${TEST_STRAVA_SECRET}"
auth:
  session_secret: "a-long-enough-session-secret"
sync:
  min_interval: "90s"
  timeout: "1m"
  activity_page_size: 50
logging:
  level: debug
  format: json
metrics:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.CookieSecure)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "from-env", cfg.Strava.ClientSecret)
	assert.Equal(t, "https://runquest.example.com/auth/strava/callback", cfg.Strava.CallbackURL)
	assert.Equal(t, 90*time.Second, cfg.Sync.MinInterval.Duration)
	assert.Equal(t, time.Minute, cfg.Sync.Timeout.Duration)
	assert.Equal(t, 50, cfg.Sync.ActivityPageSize)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration)

	require.NoError(t, cfg.ValidateServer())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  port: 9090\nsync:\n  min_interval: 10m\n")

	t.Setenv("PORT", "7000")
	t.Setenv("DB_PATH", "/var/lib/runquest/app.db")
	t.Setenv("RUNQUEST_SYNC_MIN_INTERVAL", "0s")
	t.Setenv("RUNQUEST_STRAVA_SCOPES", "read, activity:read_all ,")
	t.Setenv("RUNQUEST_METRICS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/runquest/app.db", cfg.Storage.Path)
	assert.Equal(t, time.Duration(0), cfg.Sync.MinInterval.Duration)
	assert.Equal(t, []string{"read", "activity:read_all"}, cfg.Strava.Scopes)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_RunquestPrefixWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("RUNQUEST_PORT", "7001")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestLoad_InvalidEnvValueKeepsFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")
	t.Setenv("RUNQUEST_SYNC_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Sync.Timeout.Duration)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "sync:\n  min_interval: soon\n"))
		assert.ErrorContains(t, err, "soon")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [\n"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }},
		{"postgres without url", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"short token key", func(c *Config) { c.Auth.TokenKey = "short" }},
		{"negative interval", func(c *Config) { c.Sync.MinInterval.Duration = -time.Second }},
		{"page size too large", func(c *Config) { c.Sync.ActivityPageSize = 201 }},
		{"page size zero", func(c *Config) { c.Sync.ActivityPageSize = 0 }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateServer(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.ValidateServer(), "client credentials missing")

	cfg.Strava.ClientID, cfg.Strava.ClientSecret = "id", "secret"
	cfg.Auth.SessionSecret = "short"
	assert.Error(t, cfg.ValidateServer())

	cfg.Auth.SessionSecret = "a-long-enough-session-secret"
	assert.NoError(t, cfg.ValidateServer())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
