package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
)

var _ repository.ActivityRepository = (*DB)(nil)

const activityColumns = `id, owner_id, name, type, sport_type, distance, moving_time, elapsed_time,
	elevation_gain, start_date, start_date_local, average_speed, max_speed,
	average_heartrate, max_heartrate, created_at, updated_at`

// UpsertActivities writes the batch in one transaction keyed by the upstream
// activity id, so re-syncing the same page updates rows instead of
// duplicating them.
func (db *DB) UpsertActivities(ctx context.Context, activities []model.Activity) error {
	if len(activities) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning activity upsert: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO activities (id, owner_id, name, type, sport_type, distance, moving_time, elapsed_time,
			elevation_gain, start_date, start_date_local, average_speed, max_speed,
			average_heartrate, max_heartrate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			sport_type = excluded.sport_type,
			distance = excluded.distance,
			moving_time = excluded.moving_time,
			elapsed_time = excluded.elapsed_time,
			elevation_gain = excluded.elevation_gain,
			start_date = excluded.start_date,
			start_date_local = excluded.start_date_local,
			average_speed = excluded.average_speed,
			max_speed = excluded.max_speed,
			average_heartrate = excluded.average_heartrate,
			max_heartrate = excluded.max_heartrate,
			updated_at = excluded.updated_at
		 WHERE activities.owner_id = excluded.owner_id`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing activity upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, a := range activities {
		_, err := stmt.ExecContext(ctx,
			a.ID, a.OwnerID, a.Name, a.Type, a.SportType,
			a.DistanceMeters, a.MovingTimeSeconds, a.ElapsedTimeSeconds,
			a.ElevationGain, a.StartDate.Unix(), a.StartDateLocal.Unix(),
			a.AverageSpeed, a.MaxSpeed,
			nullFloat(a.AverageHeartrate), nullFloat(a.MaxHeartrate),
			now, now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: upserting activity %d: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing activity upsert: %w", err)
	}
	return nil
}

// ListActivities returns the owner's mirrored activities, newest first.
func (db *DB) ListActivities(ctx context.Context, ownerID int64, opts repository.ListOptions) ([]model.Activity, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+activityColumns+`
		 FROM activities WHERE owner_id = ?
		 ORDER BY start_date DESC, id DESC
		 LIMIT ? OFFSET ?`,
		ownerID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing activities for owner %d: %w", ownerID, err)
	}
	return scanActivities(rows)
}

// ActivitiesSince returns activities starting at or after since, oldest first.
func (db *DB) ActivitiesSince(ctx context.Context, ownerID int64, since time.Time) ([]model.Activity, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+activityColumns+`
		 FROM activities WHERE owner_id = ? AND start_date >= ?
		 ORDER BY start_date ASC, id ASC`,
		ownerID, since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing activities since %s for owner %d: %w", since.Format(time.RFC3339), ownerID, err)
	}
	return scanActivities(rows)
}

func (db *DB) CountActivities(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE owner_id = ?`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting activities for owner %d: %w", ownerID, err)
	}
	return n, nil
}

func scanActivities(rows *sql.Rows) ([]model.Activity, error) {
	defer rows.Close()

	out := []model.Activity{}
	for rows.Next() {
		var (
			a               model.Activity
			start, startLoc int64
			avgHR, maxHR    sql.NullFloat64
		)
		err := rows.Scan(
			&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.SportType,
			&a.DistanceMeters, &a.MovingTimeSeconds, &a.ElapsedTimeSeconds,
			&a.ElevationGain, &start, &startLoc, &a.AverageSpeed, &a.MaxSpeed,
			&avgHR, &maxHR, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning activity: %w", err)
		}
		a.StartDate = time.Unix(start, 0).UTC()
		a.StartDateLocal = time.Unix(startLoc, 0).UTC()
		a.AverageHeartrate = floatPtr(avgHR)
		a.MaxHeartrate = floatPtr(maxHR)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating activities: %w", err)
	}
	return out, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
