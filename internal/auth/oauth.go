package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/runquest/internal/strava"
)

// StravaEndpoint holds Strava's OAuth endpoints.
//
// AuthStyleInParams: Strava expects client_id and client_secret in the form
// body of the token request, not in a Basic auth header.
var StravaEndpoint = oauth2.Endpoint{
	AuthURL:   "https://www.strava.com/oauth/authorize",
	TokenURL:  "https://www.strava.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultScopes are requested on every authorization.
//   - "read"                public segments, routes and profile basics
//   - "activity:read_all"   every activity, including private ones
//   - "profile:read_all"    full profile (needed for stats)
var DefaultScopes = []string{"read", "activity:read_all", "profile:read_all"}

// TokenGrant is the result of an authorization-code exchange or a refresh.
// ExpiresAt is absolute epoch seconds, the unit Strava itself uses.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	Athlete      *strava.Athlete // only present on the code exchange
}

// StravaProvider wraps golang.org/x/oauth2 for Strava's Authorization Code
// flow and its refresh-token grant.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
// 1. Redirect the owner to Strava's authorize endpoint with the client id.
// 2. The owner approves on Strava.
// 3. Strava redirects back to the callback URL with a short-lived "code".
// 4. The server exchanges the code for tokens (server-to-server, with the
//    client secret). Strava's response also embeds the athlete summary.
//
// REFRESH:
// Strava access tokens live six hours. Refresh makes exactly one
// refresh_token grant; retrying is left to the caller.
type StravaProvider struct {
	config *oauth2.Config
}

// NewStravaProvider creates a StravaProvider. callbackURL must match the
// "Authorization Callback Domain" registered at strava.com/settings/api.
func NewStravaProvider(clientID, clientSecret, callbackURL string) *StravaProvider {
	return NewStravaProviderWithEndpoint(clientID, clientSecret, callbackURL, StravaEndpoint)
}

// NewStravaProviderWithEndpoint is NewStravaProvider against a custom
// endpoint, used by tests and by deployments behind a proxy.
func NewStravaProviderWithEndpoint(clientID, clientSecret, callbackURL string, endpoint oauth2.Endpoint) *StravaProvider {
	return &StravaProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       DefaultScopes,
			Endpoint:     endpoint,
		},
	}
}

// SetScopes replaces the requested scopes. An empty list keeps DefaultScopes.
func (p *StravaProvider) SetScopes(scopes []string) {
	if len(scopes) > 0 {
		p.config.Scopes = scopes
	}
}

// AuthURL returns the URL to redirect the owner to.
//
// STATE PARAMETER:
// The state is a random string stored in a cookie before redirecting. The
// callback verifies the returned state matches the cookie, which blocks CSRF
// logins into an attacker's account.
//
// Strava spells its scope separator as a comma; x/oauth2 joins scopes with a
// space, which Strava also accepts.
func (p *StravaProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// Exchange trades an authorization code for a TokenGrant.
func (p *StravaProvider) Exchange(ctx context.Context, code string) (*TokenGrant, error) {
	if code == "" {
		return nil, errors.New("auth: empty authorization code")
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	grant, err := grantFromToken(tok)
	if err != nil {
		return nil, err
	}

	athlete, err := athleteFromToken(tok)
	if err != nil {
		return nil, err
	}
	if athlete == nil || athlete.ID == 0 {
		return nil, errors.New("auth: Strava returned no athlete with the token")
	}
	grant.Athlete = athlete

	return grant, nil
}

// Refresh performs one refresh_token grant. If Strava does not rotate the
// refresh token, the returned grant carries the one passed in.
func (p *StravaProvider) Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	if refreshToken == "" {
		return nil, errors.New("auth: no refresh token")
	}

	// A token with no access token is never valid, so the TokenSource goes
	// straight to the refresh grant. It makes one request and does not retry.
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("auth: refreshing token: %w", err)
	}

	grant, err := grantFromToken(tok)
	if err != nil {
		return nil, err
	}
	if grant.RefreshToken == "" {
		grant.RefreshToken = refreshToken
	}
	return grant, nil
}

// grantFromToken reads Strava's absolute expires_at, falling back to the
// expiry x/oauth2 computed from expires_in.
func grantFromToken(tok *oauth2.Token) (*TokenGrant, error) {
	if tok.AccessToken == "" {
		return nil, errors.New("auth: token response has no access token")
	}

	g := &TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}

	// JSON responses decode numbers as float64; form-encoded ones give strings.
	switch v := tok.Extra("expires_at").(type) {
	case nil:
	case float64:
		g.ExpiresAt = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("auth: malformed expires_at %q: %w", v, err)
		}
		g.ExpiresAt = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("auth: malformed expires_at %q: %w", v, err)
		}
		g.ExpiresAt = n
	default:
		return nil, fmt.Errorf("auth: unexpected expires_at type %T", v)
	}
	if g.ExpiresAt == 0 && !tok.Expiry.IsZero() {
		g.ExpiresAt = tok.Expiry.Unix()
	}
	if g.ExpiresAt == 0 {
		// No expiry information at all: treat as already expired so the next
		// use forces a refresh rather than trusting the token forever.
		g.ExpiresAt = time.Now().Unix()
	}
	return g, nil
}

func athleteFromToken(tok *oauth2.Token) (*strava.Athlete, error) {
	raw := tok.Extra("athlete")
	if raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("auth: re-encoding athlete: %w", err)
	}
	var a strava.Athlete
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("auth: decoding athlete: %w", err)
	}
	return &a, nil
}
