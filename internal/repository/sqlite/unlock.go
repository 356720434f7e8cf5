package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
)

var _ repository.UnlockRepository = (*DB)(nil)

// ListUnlocks returns every unlock the owner has, oldest first.
func (db *DB) ListUnlocks(ctx context.Context, ownerID int64) ([]model.UnlockRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, owner_id, achievement_id, name, description, unlocked_at
		 FROM unlocks WHERE owner_id = ?
		 ORDER BY unlocked_at ASC, achievement_id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing unlocks for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.UnlockRecord
	for rows.Next() {
		var u model.UnlockRecord
		if err := rows.Scan(&u.ID, &u.OwnerID, &u.AchievementID, &u.Name, &u.Description, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning unlock: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating unlocks: %w", err)
	}
	return out, nil
}

// CreateUnlock inserts rec unless the owner already has that achievement.
//
// ON CONFLICT DO NOTHING makes the insert itself the uniqueness check: two
// syncs racing on the same achievement both succeed, exactly one of them
// reports created == true, and the existing row (with its original
// unlocked_at) is never touched.
func (db *DB) CreateUnlock(ctx context.Context, rec *model.UnlockRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = xid.New().String()
	}
	if rec.UnlockedAt.IsZero() {
		rec.UnlockedAt = time.Now()
	}
	rec.UnlockedAt = rec.UnlockedAt.UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO unlocks (id, owner_id, achievement_id, name, description, unlocked_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, achievement_id) DO NOTHING`,
		rec.ID, rec.OwnerID, rec.AchievementID, rec.Name, rec.Description, rec.UnlockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: creating unlock %s for owner %d: %w", rec.AchievementID, rec.OwnerID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	return n == 1, nil
}
