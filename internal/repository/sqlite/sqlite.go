// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// One owner, a few thousand activities, a handful of unlock rows: the whole
// data set fits comfortably in a single embedded file. No database server to
// run, and ":memory:" gives every test its own throwaway database.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain and cross-compiles like any other Go program.
//
// TIMESTAMPS:
// Columns that are only read back (created_at, updated_at, unlocked_at) are
// DATETIME and scan straight into time.Time. Columns the queries compare or
// order by (activity start dates, sync run times, token expiry) are INTEGER
// epoch values so comparisons are numeric, not lexical.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named
	// "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"

	"github.com/sakif/runquest/internal/repository"
)

// compile-time check that *DB implements every port
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn   *sql.DB
	cipher repository.TokenCipher
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/runquest.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
//
// cipher seals credential tokens; nil stores them as given.
func New(dbPath string, cipher repository.TokenCipher) (*DB, error) {
	// foreign_keys and busy_timeout are per-connection settings. Passing them
	// as _pragma parameters makes the driver apply them to every connection
	// the pool opens, not just the first one.
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	dsn := dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database. Pinning
	// the pool to one connection keeps the schema and data visible to all
	// queries.
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress, which
	// matters when a sync and a dashboard read land at the same moment.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if cipher == nil {
		cipher = plainCipher{}
	}
	db := &DB{conn: conn, cipher: cipher}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Ping checks the connection; /healthz calls it.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// every start.
func (db *DB) migrate() error {
	// Owners are keyed by the Strava athlete id.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS owners (
			id             INTEGER PRIMARY KEY,
			username       TEXT NOT NULL DEFAULT '',
			firstname      TEXT NOT NULL DEFAULT '',
			lastname       TEXT NOT NULL DEFAULT '',
			profile_medium TEXT NOT NULL DEFAULT '',
			profile        TEXT NOT NULL DEFAULT '',
			city           TEXT NOT NULL DEFAULT '',
			country        TEXT NOT NULL DEFAULT '',
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating owners table: %w", err)
	}

	// One credential row per owner, replaced whole on every refresh.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			owner_id      INTEGER PRIMARY KEY REFERENCES owners(id) ON DELETE CASCADE,
			access_token  TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at    INTEGER NOT NULL,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating credentials table: %w", err)
	}

	// scope arrived after the first release of the credentials table.
	if err := db.addColumnIfNotExists("credentials", "scope", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding scope to credentials: %w", err)
	}

	// The unique (owner_id, achievement_id) pair is what makes unlocks
	// idempotent under concurrent syncs.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS unlocks (
			id             TEXT PRIMARY KEY,
			owner_id       INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
			achievement_id TEXT NOT NULL,
			name           TEXT NOT NULL DEFAULT '',
			description    TEXT NOT NULL DEFAULT '',
			unlocked_at    DATETIME NOT NULL,
			UNIQUE (owner_id, achievement_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating unlocks table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS activities (
			id                INTEGER PRIMARY KEY,
			owner_id          INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
			name              TEXT NOT NULL DEFAULT '',
			type              TEXT NOT NULL DEFAULT '',
			sport_type        TEXT NOT NULL DEFAULT '',
			distance          REAL NOT NULL DEFAULT 0,
			moving_time       INTEGER NOT NULL DEFAULT 0,
			elapsed_time      INTEGER NOT NULL DEFAULT 0,
			elevation_gain    REAL NOT NULL DEFAULT 0,
			start_date        INTEGER NOT NULL,
			start_date_local  INTEGER NOT NULL,
			average_speed     REAL NOT NULL DEFAULT 0,
			max_speed         REAL NOT NULL DEFAULT 0,
			average_heartrate REAL,
			max_heartrate     REAL,
			created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_activities_owner_start ON activities(owner_id, start_date DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating activities table: %w", err)
	}

	// started_at / finished_at are unix milliseconds.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sync_runs (
			id          TEXT PRIMARY KEY,
			owner_id    INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
			kind        TEXT NOT NULL,
			status      TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			total       INTEGER NOT NULL DEFAULT 0,
			created     INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_sync_runs_lookup ON sync_runs(owner_id, kind, status, finished_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating sync_runs table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so it is safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// plainCipher stores tokens unchanged.
type plainCipher struct{}

func (plainCipher) Seal(_ int64, s string) (string, error) { return s, nil }
func (plainCipher) Open(_ int64, s string) (string, error) { return s, nil }
