// Package postgres implements the repository ports on PostgreSQL through a
// pgx connection pool. It mirrors the sqlite package table for table; pick it
// with storage.driver: postgres when several server instances share one
// database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
)

var _ repository.Store = (*Repository)(nil)

// schema is applied on every start; each statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS owners (
	id             BIGINT PRIMARY KEY,
	username       TEXT NOT NULL DEFAULT '',
	firstname      TEXT NOT NULL DEFAULT '',
	lastname       TEXT NOT NULL DEFAULT '',
	profile_medium TEXT NOT NULL DEFAULT '',
	profile        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	country        TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS credentials (
	owner_id      BIGINT PRIMARY KEY REFERENCES owners(id) ON DELETE CASCADE,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at    BIGINT NOT NULL,
	scope         TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS unlocks (
	id             TEXT PRIMARY KEY,
	owner_id       BIGINT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	achievement_id TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	unlocked_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, achievement_id)
);

CREATE TABLE IF NOT EXISTS activities (
	id                BIGINT PRIMARY KEY,
	owner_id          BIGINT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	name              TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL DEFAULT '',
	sport_type        TEXT NOT NULL DEFAULT '',
	distance          DOUBLE PRECISION NOT NULL DEFAULT 0,
	moving_time       BIGINT NOT NULL DEFAULT 0,
	elapsed_time      BIGINT NOT NULL DEFAULT 0,
	elevation_gain    DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_date        TIMESTAMPTZ NOT NULL,
	start_date_local  TIMESTAMPTZ NOT NULL,
	average_speed     DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_speed         DOUBLE PRECISION NOT NULL DEFAULT 0,
	average_heartrate DOUBLE PRECISION,
	max_heartrate     DOUBLE PRECISION,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_activities_owner_start ON activities(owner_id, start_date DESC);

CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	owner_id    BIGINT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	created     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_lookup ON sync_runs(owner_id, kind, status, finished_at DESC);
`

// Repository provides Postgres-backed persistence for every port.
type Repository struct {
	pool   *pgxpool.Pool
	cipher repository.TokenCipher
}

// Open connects to url, verifies the connection and applies the schema.
func Open(ctx context.Context, url string, cipher repository.TokenCipher) (*Repository, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	r := NewRepository(pool, cipher)
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// NewRepository wraps an existing pool. cipher may be nil.
func NewRepository(pool *pgxpool.Pool, cipher repository.TokenCipher) *Repository {
	if cipher == nil {
		cipher = plainCipher{}
	}
	return &Repository{pool: pool, cipher: cipher}
}

// Migrate applies the schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: applying schema: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// ---- owners ---------------------------------------------------------------

func (r *Repository) UpsertOwner(ctx context.Context, owner *model.Owner) error {
	if owner.ID <= 0 {
		return apperror.ValidationFailed("id", "owner id must be positive")
	}

	const q = `INSERT INTO owners (id, username, firstname, lastname, profile_medium, profile, city, country)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			firstname = EXCLUDED.firstname,
			lastname = EXCLUDED.lastname,
			profile_medium = EXCLUDED.profile_medium,
			profile = EXCLUDED.profile,
			city = EXCLUDED.city,
			country = EXCLUDED.country,
			updated_at = now()
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, q,
		owner.ID, owner.Username, owner.Firstname, owner.Lastname,
		owner.ProfileMedium, owner.Profile, owner.City, owner.Country,
	).Scan(&owner.CreatedAt, &owner.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting owner %d: %w", owner.ID, err)
	}
	return nil
}

func (r *Repository) GetOwner(ctx context.Context, id int64) (*model.Owner, error) {
	const q = `SELECT id, username, firstname, lastname, profile_medium, profile, city, country, created_at, updated_at
		FROM owners WHERE id = $1`

	var o model.Owner
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&o.ID, &o.Username, &o.Firstname, &o.Lastname,
		&o.ProfileMedium, &o.Profile, &o.City, &o.Country,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("owner", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("postgres: getting owner %d: %w", id, err)
	}
	return &o, nil
}

// ---- credentials ----------------------------------------------------------

func (r *Repository) GetCredential(ctx context.Context, ownerID int64) (*model.Credential, error) {
	const q = `SELECT owner_id, access_token, refresh_token, expires_at, scope, updated_at
		FROM credentials WHERE owner_id = $1`

	var (
		c               model.Credential
		access, refresh string
	)
	err := r.pool.QueryRow(ctx, q, ownerID).Scan(&c.OwnerID, &access, &refresh, &c.ExpiresAt, &c.Scope, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("credential", strconv.FormatInt(ownerID, 10))
		}
		return nil, fmt.Errorf("postgres: getting credential for owner %d: %w", ownerID, err)
	}

	if c.AccessToken, err = r.cipher.Open(ownerID, access); err != nil {
		return nil, fmt.Errorf("postgres: opening access token for owner %d: %w", ownerID, err)
	}
	if c.RefreshToken, err = r.cipher.Open(ownerID, refresh); err != nil {
		return nil, fmt.Errorf("postgres: opening refresh token for owner %d: %w", ownerID, err)
	}
	return &c, nil
}

func (r *Repository) SaveCredential(ctx context.Context, cred model.Credential) error {
	access, err := r.cipher.Seal(cred.OwnerID, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("postgres: sealing access token: %w", err)
	}
	refresh, err := r.cipher.Seal(cred.OwnerID, cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("postgres: sealing refresh token: %w", err)
	}
	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	const q = `INSERT INTO credentials (owner_id, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (owner_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.pool.Exec(ctx, q, cred.OwnerID, access, refresh, cred.ExpiresAt, cred.Scope, updatedAt); err != nil {
		return fmt.Errorf("postgres: saving credential for owner %d: %w", cred.OwnerID, err)
	}
	return nil
}

func (r *Repository) DeleteCredential(ctx context.Context, ownerID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM credentials WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("postgres: deleting credential for owner %d: %w", ownerID, err)
	}
	return nil
}

// ---- unlocks --------------------------------------------------------------

func (r *Repository) ListUnlocks(ctx context.Context, ownerID int64) ([]model.UnlockRecord, error) {
	const q = `SELECT id, owner_id, achievement_id, name, description, unlocked_at
		FROM unlocks WHERE owner_id = $1
		ORDER BY unlocked_at ASC, achievement_id ASC`

	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing unlocks for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.UnlockRecord
	for rows.Next() {
		var u model.UnlockRecord
		if err := rows.Scan(&u.ID, &u.OwnerID, &u.AchievementID, &u.Name, &u.Description, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning unlock: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating unlocks: %w", err)
	}
	return out, nil
}

// CreateUnlock relies on the (owner_id, achievement_id) constraint: a
// concurrent duplicate inserts nothing and reports created == false.
func (r *Repository) CreateUnlock(ctx context.Context, rec *model.UnlockRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = xid.New().String()
	}
	if rec.UnlockedAt.IsZero() {
		rec.UnlockedAt = time.Now().UTC()
	}

	const q = `INSERT INTO unlocks (id, owner_id, achievement_id, name, description, unlocked_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (owner_id, achievement_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, q, rec.ID, rec.OwnerID, rec.AchievementID, rec.Name, rec.Description, rec.UnlockedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: creating unlock %s for owner %d: %w", rec.AchievementID, rec.OwnerID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ---- activities -----------------------------------------------------------

const activityColumns = `id, owner_id, name, type, sport_type, distance, moving_time, elapsed_time,
	elevation_gain, start_date, start_date_local, average_speed, max_speed,
	average_heartrate, max_heartrate, created_at, updated_at`

// UpsertActivities sends the whole batch in one round trip and one transaction.
func (r *Repository) UpsertActivities(ctx context.Context, activities []model.Activity) error {
	if len(activities) == 0 {
		return nil
	}

	const q = `INSERT INTO activities (id, owner_id, name, type, sport_type, distance, moving_time, elapsed_time,
			elevation_gain, start_date, start_date_local, average_speed, max_speed, average_heartrate, max_heartrate)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			sport_type = EXCLUDED.sport_type,
			distance = EXCLUDED.distance,
			moving_time = EXCLUDED.moving_time,
			elapsed_time = EXCLUDED.elapsed_time,
			elevation_gain = EXCLUDED.elevation_gain,
			start_date = EXCLUDED.start_date,
			start_date_local = EXCLUDED.start_date_local,
			average_speed = EXCLUDED.average_speed,
			max_speed = EXCLUDED.max_speed,
			average_heartrate = EXCLUDED.average_heartrate,
			max_heartrate = EXCLUDED.max_heartrate,
			updated_at = now()
		WHERE activities.owner_id = EXCLUDED.owner_id`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: beginning activity upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, a := range activities {
		batch.Queue(q,
			a.ID, a.OwnerID, a.Name, a.Type, a.SportType,
			a.DistanceMeters, a.MovingTimeSeconds, a.ElapsedTimeSeconds,
			a.ElevationGain, a.StartDate, a.StartDateLocal,
			a.AverageSpeed, a.MaxSpeed, a.AverageHeartrate, a.MaxHeartrate,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: upserting activities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: committing activity upsert: %w", err)
	}
	return nil
}

func (r *Repository) ListActivities(ctx context.Context, ownerID int64, opts repository.ListOptions) ([]model.Activity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE owner_id = $1
		 ORDER BY start_date DESC, id DESC LIMIT $2 OFFSET $3`,
		ownerID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing activities for owner %d: %w", ownerID, err)
	}
	return scanActivities(rows)
}

func (r *Repository) ActivitiesSince(ctx context.Context, ownerID int64, since time.Time) ([]model.Activity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE owner_id = $1 AND start_date >= $2
		 ORDER BY start_date ASC, id ASC`,
		ownerID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing activities since %s for owner %d: %w", since.Format(time.RFC3339), ownerID, err)
	}
	return scanActivities(rows)
}

func (r *Repository) CountActivities(ctx context.Context, ownerID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting activities for owner %d: %w", ownerID, err)
	}
	return n, nil
}

func scanActivities(rows pgx.Rows) ([]model.Activity, error) {
	defer rows.Close()

	out := []model.Activity{}
	for rows.Next() {
		var a model.Activity
		err := rows.Scan(
			&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.SportType,
			&a.DistanceMeters, &a.MovingTimeSeconds, &a.ElapsedTimeSeconds,
			&a.ElevationGain, &a.StartDate, &a.StartDateLocal, &a.AverageSpeed, &a.MaxSpeed,
			&a.AverageHeartrate, &a.MaxHeartrate, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning activity: %w", err)
		}
		a.StartDate = a.StartDate.UTC()
		a.StartDateLocal = a.StartDateLocal.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating activities: %w", err)
	}
	return out, nil
}

// ---- sync runs ------------------------------------------------------------

func (r *Repository) RecordSyncRun(ctx context.Context, run *model.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	const q = `INSERT INTO sync_runs (id, owner_id, kind, status, started_at, finished_at, total, created, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.pool.Exec(ctx, q,
		run.ID, run.OwnerID, string(run.Kind), string(run.Status),
		run.StartedAt, run.FinishedAt, run.Total, run.Created, run.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: recording %s sync run for owner %d: %w", run.Kind, run.OwnerID, err)
	}
	return nil
}

func (r *Repository) LastSuccessfulRun(ctx context.Context, ownerID int64, kind model.SyncKind) (*model.SyncRun, error) {
	const q = `SELECT id, owner_id, kind, status, started_at, finished_at, total, created, error
		FROM sync_runs WHERE owner_id = $1 AND kind = $2 AND status = $3
		ORDER BY finished_at DESC LIMIT 1`

	var (
		run       model.SyncRun
		k, status string
	)
	err := r.pool.QueryRow(ctx, q, ownerID, string(kind), string(model.SyncSucceeded)).Scan(
		&run.ID, &run.OwnerID, &k, &status, &run.StartedAt, &run.FinishedAt, &run.Total, &run.Created, &run.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("sync run", string(kind))
		}
		return nil, fmt.Errorf("postgres: last %s sync run for owner %d: %w", kind, ownerID, err)
	}
	run.Kind = model.SyncKind(k)
	run.Status = model.SyncStatus(status)
	return &run, nil
}

type plainCipher struct{}

func (plainCipher) Seal(_ int64, s string) (string, error) { return s, nil }
func (plainCipher) Open(_ int64, s string) (string, error) { return s, nil }
