// Package sqlite implements the star-grant ledger store on an embedded
// SQLite database. The ledger table is append-only: no UPDATE or DELETE
// statement exists anywhere in this package.
//
// Write coordination relies on the database, not on in-process locks:
// transactions are opened with _txlock=immediate so the quota re-count and
// the insert in AppendGrant run under a single write lock. A lock wait that
// exceeds busy_timeout surfaces as domain.ErrConflict, which the redemption
// service retries once.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection and implements domain.LedgerStore.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the starled database under dir and
// applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := "file:" + filepath.Join(dir, "starled.db") +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Append-only star-grant ledger. created_at is unix microseconds
		// so range queries and ordering are plain integer comparisons.
		`CREATE TABLE IF NOT EXISTS star_grants (
			id              TEXT PRIMARY KEY,
			giver_id        TEXT NOT NULL,
			recipient_id    TEXT NOT NULL,
			reason          TEXT NOT NULL,
			message         TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_star_grants_giver ON star_grants(giver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_star_grants_recipient ON star_grants(recipient_id, created_at)`,

		// Employee directory. The HR application owns writes to this
		// table; the engine only reads it. Created here so the embedded
		// mode works standalone.
		`CREATE TABLE IF NOT EXISTS employees (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			department   TEXT NOT NULL DEFAULT ''
		)`,
	}
}

func (d *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// isBusy reports whether err is a lock contention error (SQLITE_BUSY or
// SQLITE_LOCKED). The modernc driver exposes these through the error text.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked")
}
