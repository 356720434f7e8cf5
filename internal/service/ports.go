// Package service holds the business logic between the HTTP handlers (and the
// CLI) and the repositories:
//
//	handler / cli → service → repository (sqlite | postgres)
//	                        ↘ strava.Client, auth.StravaProvider
//
// Services never see *http.Request or cobra flags. They take primitives and a
// context, return model values or apperror errors, and log with the injected
// *slog.Logger. That keeps every rule testable with the in-memory fakes in
// the _test files.
package service

import (
	"context"
	"time"

	"github.com/sakif/runquest/internal/auth"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/strava"
)

// The interfaces below are the slices of the outside world each service
// needs. *strava.Client and *auth.StravaProvider satisfy them; tests pass
// fakes that count calls.

// TokenSource hands out an access token that is valid right now.
type TokenSource interface {
	GetValidToken(ctx context.Context, ownerID int64) (string, error)
}

// TokenRefresher performs the refresh_token grant.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenGrant, error)
}

// CodeExchanger drives the authorization-code half of the OAuth flow.
type CodeExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.TokenGrant, error)
}

// StatsFetcher reads aggregate statistics for one athlete.
type StatsFetcher interface {
	FetchAggregateStats(ctx context.Context, accessToken string, athleteID int64) (*model.AggregateStats, error)
}

// ActivityFetcher reads the athlete profile and their activity list.
type ActivityFetcher interface {
	FetchAthlete(ctx context.Context, accessToken string) (*strava.Athlete, error)
	FetchActivities(ctx context.Context, accessToken string, page, perPage int) ([]strava.Activity, error)
}

// StravaAPI is everything the services read from the provider.
type StravaAPI interface {
	StatsFetcher
	ActivityFetcher
}

var (
	_ StravaAPI      = (*strava.Client)(nil)
	_ TokenRefresher = (*auth.StravaProvider)(nil)
	_ CodeExchanger  = (*auth.StravaProvider)(nil)
)

// clock is swapped in tests so expiry and interval checks are deterministic.
type clock func() time.Time
