// Package app is the composition root: it turns a *config.Config into a
// store, a Strava client and the services built on them. Both the HTTP
// server and the CLI commands start here, so a sync triggered from the
// terminal runs exactly the code a sync from the dashboard runs.
//
// DEPENDENCY CHAIN:
//
//	config → vault → store (sqlite | postgres)
//	       → strava.Client, auth.StravaProvider
//	       → TokenStore → Sync/Achievement/Activity/Stats services
//	       → TokenService (session JWT) → AuthService   (server only)
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sakif/runquest/internal/achievement"
	"github.com/sakif/runquest/internal/auth"
	"github.com/sakif/runquest/internal/config"
	"github.com/sakif/runquest/internal/repository"
	"github.com/sakif/runquest/internal/repository/postgres"
	"github.com/sakif/runquest/internal/repository/sqlite"
	"github.com/sakif/runquest/internal/service"
	"github.com/sakif/runquest/internal/strava"
	"github.com/sakif/runquest/internal/vault"
)

// App holds every long-lived dependency. Close releases the store.
type App struct {
	Config  *config.Config
	Store   repository.Store
	Catalog *achievement.Catalog
	OAuth   *auth.StravaProvider
	Strava  *strava.Client

	Tokens       *service.TokenStore
	Sync         *service.SyncService
	Achievements *service.AchievementService
	Activities   *service.ActivityService
	Stats        *service.StatsService
	Insights     *service.InsightsService

	// Sessions and Auth are nil until EnableSessions is called. CLI
	// commands never issue sessions and so don't need a session secret.
	Sessions *auth.TokenService
	Auth     *service.AuthService

	logger *slog.Logger
}

// New opens the configured store and wires the services.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Storage, cfg.Auth.TokenKey)
	if err != nil {
		return nil, err
	}

	client := strava.New(logger,
		strava.WithBaseURL(cfg.Strava.APIBaseURL),
		strava.WithHTTPClient(&http.Client{Timeout: cfg.Strava.Timeout.Duration}),
		strava.WithRateLimit(cfg.Strava.RateLimit, cfg.Strava.RateBurst),
	)

	provider := auth.NewStravaProvider(cfg.Strava.ClientID, cfg.Strava.ClientSecret, cfg.Strava.CallbackURL)
	provider.SetScopes(cfg.Strava.Scopes)

	catalog := achievement.Default()
	tokens := service.NewTokenStore(store, provider, logger)
	minInterval := cfg.Sync.MinInterval.Duration

	return &App{
		Config:  cfg,
		Store:   store,
		Catalog: catalog,
		OAuth:   provider,
		Strava:  client,

		Tokens:       tokens,
		Sync:         service.NewSyncService(tokens, client, store, catalog, minInterval, cfg.Sync.Timeout.Duration, logger),
		Achievements: service.NewAchievementService(tokens, client, store, catalog, logger),
		Activities:   service.NewActivityService(tokens, client, store, cfg.Sync.ActivityPageSize, minInterval, logger),
		Stats:        service.NewStatsService(tokens, client, store, logger),
		Insights:     service.NewInsightsService(store),

		logger: logger,
	}, nil
}

// EnableSessions builds the session signer and the sign-in service. The
// server calls it after config.ValidateServer has passed.
func (a *App) EnableSessions() error {
	sessions, err := auth.NewTokenService(a.Config.Auth.SessionSecret)
	if err != nil {
		return err
	}
	a.Sessions = sessions
	a.Auth = service.NewAuthService(a.OAuth, a.Store, a.Tokens, sessions, a.logger)
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// OpenStore opens the backend named by cfg.Driver with credential sealing
// keyed by tokenKey (empty disables sealing).
func OpenStore(ctx context.Context, cfg config.StorageConfig, tokenKey string) (repository.Store, error) {
	v, err := vault.New(tokenKey)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "postgres":
		repo, err := postgres.Open(ctx, cfg.URL, v)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return repo, nil

	case "sqlite", "":
		if cfg.Path != ":memory:" {
			// mkdir -p for the data directory
			if dir := filepath.Dir(cfg.Path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
				}
			}
		}
		db, err := sqlite.New(cfg.Path, v)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
