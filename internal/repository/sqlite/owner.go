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

var _ repository.OwnerRepository = (*DB)(nil)

// UpsertOwner inserts the owner or refreshes the profile fields of an
// existing row. created_at is kept; owner is updated in place with the stored
// timestamps.
//
// ON CONFLICT DO UPDATE (rather than INSERT OR REPLACE) matters here:
// REPLACE deletes the old row first, which would cascade-delete the owner's
// credential, unlocks and activities.
func (db *DB) UpsertOwner(ctx context.Context, owner *model.Owner) error {
	if owner.ID <= 0 {
		return apperror.ValidationFailed("id", "owner id must be positive")
	}

	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO owners (id, username, firstname, lastname, profile_medium, profile, city, country, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			firstname = excluded.firstname,
			lastname = excluded.lastname,
			profile_medium = excluded.profile_medium,
			profile = excluded.profile,
			city = excluded.city,
			country = excluded.country,
			updated_at = excluded.updated_at`,
		owner.ID,
		owner.Username,
		owner.Firstname,
		owner.Lastname,
		owner.ProfileMedium,
		owner.Profile,
		owner.City,
		owner.Country,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting owner %d: %w", owner.ID, err)
	}

	stored, err := db.GetOwner(ctx, owner.ID)
	if err != nil {
		return err
	}
	owner.CreatedAt = stored.CreatedAt
	owner.UpdatedAt = stored.UpdatedAt
	return nil
}

// GetOwner returns apperror.ErrNotFound if no owner has that id.
func (db *DB) GetOwner(ctx context.Context, id int64) (*model.Owner, error) {
	var o model.Owner
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, firstname, lastname, profile_medium, profile, city, country, created_at, updated_at
		 FROM owners WHERE id = ?`,
		id,
	).Scan(
		&o.ID,
		&o.Username,
		&o.Firstname,
		&o.Lastname,
		&o.ProfileMedium,
		&o.Profile,
		&o.City,
		&o.Country,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("owner", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting owner %d: %w", id, err)
	}
	return &o, nil
}
