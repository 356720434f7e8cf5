package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/auth"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
)

// AuthService handles the sign-in, sign-out and "who am I" flows.
//
//	AuthHandler (HTTP) → AuthService → StravaProvider (code exchange)
//	                                 ↘ OwnerRepository, TokenStore (DB)
//	                                 ↘ TokenService (session JWT)
//
// The session cookie only carries a signed owner id. The Strava credential
// never leaves the server; it is looked up by that id on each request.
type AuthService struct {
	oauth    CodeExchanger
	owners   repository.OwnerRepository
	tokens   *TokenStore
	sessions *auth.TokenService
	logger   *slog.Logger
}

func NewAuthService(
	oauth CodeExchanger,
	owners repository.OwnerRepository,
	tokens *TokenStore,
	sessions *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		oauth:    oauth,
		owners:   owners,
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
	}
}

// AuthResult bundles the owner and the session token so the handler can set
// the cookie and redirect in one step.
type AuthResult struct {
	Owner   *model.Owner
	Session string
}

// LoginURL is where the browser is sent to approve access.
func (s *AuthService) LoginURL(state string) string {
	return s.oauth.AuthURL(state)
}

// CompleteLogin exchanges the callback code, stores the owner and their
// credential, and issues a session. scope is the comma-separated list Strava
// reports as granted.
func (s *AuthService) CompleteLogin(ctx context.Context, code, scope string) (*AuthResult, error) {
	if code == "" {
		return nil, apperror.ValidationFailed("code", "authorization code is missing")
	}

	grant, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("code exchange failed", slog.String("error", err.Error()))
		return nil, apperror.Unauthenticated(apperror.CodeExchangeFailed, "Strava did not accept the authorization code")
	}
	if grant.Athlete == nil || grant.Athlete.ID <= 0 {
		return nil, apperror.Unauthenticated(apperror.CodeExchangeFailed, "Strava did not return an athlete")
	}

	owner := grant.Athlete.ToOwner()
	if err := s.owners.UpsertOwner(ctx, &owner); err != nil {
		return nil, fmt.Errorf("service/auth: upserting owner %d: %w", owner.ID, err)
	}

	err = s.tokens.Save(ctx, model.Credential{
		OwnerID:      owner.ID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		Scope:        scope,
	})
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Generate(owner.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing session for owner %d: %w", owner.ID, err)
	}

	s.logger.Info("owner signed in",
		slog.Int64("ownerID", owner.ID),
		slog.String("username", owner.Username),
		slog.Time("tokenExpiresAt", time.Unix(grant.ExpiresAt, 0)),
	)
	return &AuthResult{Owner: &owner, Session: session}, nil
}

// Logout forgets the owner's Strava credential. The handler clears the cookie.
func (s *AuthService) Logout(ctx context.Context, ownerID int64) error {
	if err := s.tokens.Delete(ctx, ownerID); err != nil {
		return err
	}
	s.logger.Info("owner signed out", slog.Int64("ownerID", ownerID))
	return nil
}

// Me returns the stored profile for the session's owner.
func (s *AuthService) Me(ctx context.Context, ownerID int64) (*model.Owner, error) {
	owner, err := s.owners.GetOwner(ctx, ownerID)
	if errors.Is(err, apperror.ErrNotFound) {
		// A valid session for an owner that no longer exists.
		return nil, apperror.Unauthenticated(apperror.CodeNoSession, "no owner for this session; sign in again")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching owner %d: %w", ownerID, err)
	}
	return owner, nil
}
