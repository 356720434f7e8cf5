package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
)

var _ repository.SyncRunRepository = (*DB)(nil)

// RecordSyncRun appends a finished run. An empty ID gets a fresh UUID.
func (db *DB) RecordSyncRun(ctx context.Context, run *model.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sync_runs (id, owner_id, kind, status, started_at, finished_at, total, created, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.OwnerID, string(run.Kind), string(run.Status),
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Total, run.Created, run.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording %s sync run for owner %d: %w", run.Kind, run.OwnerID, err)
	}
	return nil
}

// LastSuccessfulRun returns the most recently finished successful run of kind.
func (db *DB) LastSuccessfulRun(ctx context.Context, ownerID int64, kind model.SyncKind) (*model.SyncRun, error) {
	var (
		r                   model.SyncRun
		kindStr, status     string
		started, finishedAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, kind, status, started_at, finished_at, total, created, error
		 FROM sync_runs
		 WHERE owner_id = ? AND kind = ? AND status = ?
		 ORDER BY finished_at DESC
		 LIMIT 1`,
		ownerID, string(kind), string(model.SyncSucceeded),
	).Scan(&r.ID, &r.OwnerID, &kindStr, &status, &started, &finishedAt, &r.Total, &r.Created, &r.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("sync run", string(kind))
		}
		return nil, fmt.Errorf("sqlite: last %s sync run for owner %d: %w", kind, ownerID, err)
	}

	r.Kind = model.SyncKind(kindStr)
	r.Status = model.SyncStatus(status)
	r.StartedAt = time.UnixMilli(started).UTC()
	r.FinishedAt = time.UnixMilli(finishedAt).UTC()
	return &r, nil
}
