package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
)

var _ repository.CredentialRepository = (*DB)(nil)

// GetCredential returns the owner's credential with tokens opened.
// Returns apperror.ErrNotFound when the owner never signed in or signed out.
func (db *DB) GetCredential(ctx context.Context, ownerID int64) (*model.Credential, error) {
	var (
		c                    model.Credential
		sealedAccess, sealed string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT owner_id, access_token, refresh_token, expires_at, scope, updated_at
		 FROM credentials WHERE owner_id = ?`,
		ownerID,
	).Scan(&c.OwnerID, &sealedAccess, &sealed, &c.ExpiresAt, &c.Scope, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("credential", strconv.FormatInt(ownerID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting credential for owner %d: %w", ownerID, err)
	}

	if c.AccessToken, err = db.cipher.Open(ownerID, sealedAccess); err != nil {
		return nil, fmt.Errorf("sqlite: opening access token for owner %d: %w", ownerID, err)
	}
	if c.RefreshToken, err = db.cipher.Open(ownerID, sealed); err != nil {
		return nil, fmt.Errorf("sqlite: opening refresh token for owner %d: %w", ownerID, err)
	}
	return &c, nil
}

// SaveCredential writes every token field in a single statement, so a reader
// sees either the old triple or the new one.
func (db *DB) SaveCredential(ctx context.Context, cred model.Credential) error {
	access, err := db.cipher.Seal(cred.OwnerID, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("sqlite: sealing access token: %w", err)
	}
	refresh, err := db.cipher.Seal(cred.OwnerID, cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("sqlite: sealing refresh token: %w", err)
	}

	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO credentials (owner_id, access_token, refresh_token, expires_at, scope, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at`,
		cred.OwnerID, access, refresh, cred.ExpiresAt, cred.Scope, updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving credential for owner %d: %w", cred.OwnerID, err)
	}
	return nil
}

// DeleteCredential removes the owner's credential. Deleting a missing row is
// not an error: signing out twice is fine.
func (db *DB) DeleteCredential(ctx context.Context, ownerID int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM credentials WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("sqlite: deleting credential for owner %d: %w", ownerID, err)
	}
	return nil
}
