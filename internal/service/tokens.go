package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/observability"
	"github.com/sakif/runquest/internal/repository"
)

// refreshTimeout bounds one shared refresh grant.
const refreshTimeout = 30 * time.Second

// TokenStore owns the credential lifecycle: it returns a usable access token
// for an owner, refreshing it first when it has expired.
//
// STATE MACHINE (per owner, evaluated on every call):
//
//	no credential         → AuthError "no_session"
//	ExpiresAt >  now      → Valid:   return the stored access token, no network
//	ExpiresAt <= now      → Expired: exactly one refresh_token grant
//	    grant succeeds    → store Credential.Refreshed(...) in one statement, return it
//	    grant fails       → AuthError "refresh_failed", stored row untouched
//
// There is no retry. A failed refresh means the owner has to sign in again.
//
// WHY SINGLEFLIGHT?
// A dashboard load fires several API calls at once. Without coalescing, each
// would see the same expired credential and spend the same refresh token;
// Strava rotates refresh tokens, so all but the first grant would fail.
// singleflight.Group lets the first caller refresh while the others wait for
// its result. Across processes the last writer wins, which is acceptable
// because every writer stores a complete, valid credential.
type TokenStore struct {
	creds     repository.CredentialRepository
	refresher TokenRefresher
	logger    *slog.Logger
	now       clock
	group     singleflight.Group
}

func NewTokenStore(creds repository.CredentialRepository, refresher TokenRefresher, logger *slog.Logger) *TokenStore {
	return &TokenStore{
		creds:     creds,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// GetValidToken returns an access token that has not expired.
func (s *TokenStore) GetValidToken(ctx context.Context, ownerID int64) (string, error) {
	cred, err := s.load(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if !cred.Expired(s.now()) {
		return cred.AccessToken, nil
	}

	// The refresh runs detached from this caller's ctx: callers that joined
	// it must not fail because the first one went away.
	ch := s.group.DoChan(strconv.FormatInt(ownerID, 10), func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(refreshCtx, ownerID)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		if r.Shared {
			s.logger.Debug("joined in-flight token refresh", slog.Int64("ownerID", ownerID))
		}
		return r.Val.(string), nil
	}
}

func (s *TokenStore) refresh(ctx context.Context, ownerID int64) (string, error) {
	// Re-read inside the flight: a refresh that finished between our first
	// read and acquiring the key has already stored a fresh credential.
	cred, err := s.load(ctx, ownerID)
	if err != nil {
		return "", err
	}
	now := s.now()
	if !cred.Expired(now) {
		return cred.AccessToken, nil
	}

	grant, err := s.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		observability.RecordTokenRefresh("failure")
		s.logger.Warn("token refresh failed",
			slog.Int64("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return "", apperror.Unauthenticated(apperror.CodeRefreshFailed, "could not refresh the Strava session; sign in again")
	}

	next := cred.Refreshed(grant.AccessToken, grant.RefreshToken, grant.ExpiresAt, now)
	if err := s.creds.SaveCredential(ctx, next); err != nil {
		observability.RecordTokenRefresh("failure")
		return "", fmt.Errorf("service/tokens: storing refreshed credential for owner %d: %w", ownerID, err)
	}

	observability.RecordTokenRefresh("success")
	s.logger.Info("token refreshed",
		slog.Int64("ownerID", ownerID),
		slog.Int64("expiresAt", next.ExpiresAt),
	)
	return next.AccessToken, nil
}

// Save stores a credential obtained from a code exchange.
func (s *TokenStore) Save(ctx context.Context, cred model.Credential) error {
	if cred.OwnerID <= 0 {
		return apperror.ValidationFailed("ownerId", "owner id must be positive")
	}
	if cred.AccessToken == "" {
		return apperror.ValidationFailed("accessToken", "access token must not be empty")
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = s.now()
	}
	if err := s.creds.SaveCredential(ctx, cred); err != nil {
		return fmt.Errorf("service/tokens: saving credential for owner %d: %w", cred.OwnerID, err)
	}
	return nil
}

// Delete forgets the owner's credential. Deleting a missing one is not an error.
func (s *TokenStore) Delete(ctx context.Context, ownerID int64) error {
	if err := s.creds.DeleteCredential(ctx, ownerID); err != nil {
		return fmt.Errorf("service/tokens: deleting credential for owner %d: %w", ownerID, err)
	}
	return nil
}

func (s *TokenStore) load(ctx context.Context, ownerID int64) (*model.Credential, error) {
	cred, err := s.creds.GetCredential(ctx, ownerID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthenticated(apperror.CodeNoSession, "no Strava session for this owner; sign in first")
	}
	if err != nil {
		return nil, fmt.Errorf("service/tokens: loading credential for owner %d: %w", ownerID, err)
	}
	return cred, nil
}
