// Package store persists link state: preferences, the host command journal
// and the battery voltage log.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var ErrInvalidSetting = errors.New("store: invalid setting")

// DB wraps *sql.DB with domain helpers.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the SQLite file at path with WAL journal mode.
// ":memory:" gives a private in-memory database.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	// Single writer; the link touches the store from a few goroutines only.
	raw.SetMaxOpenConns(1)
	db := &DB{raw}
	if err := Migrate(db); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema. It is idempotent.
func Migrate(db *DB) error {
	for _, stmt := range []string{ddlPreferences, ddlCommandJournal} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

const ddlPreferences = `
CREATE TABLE IF NOT EXISTS preferences (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

const ddlCommandJournal = `
CREATE TABLE IF NOT EXISTS command_journal (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	command_id   TEXT NOT NULL,
	encoded      BLOB NOT NULL,
	submitted_at INTEGER NOT NULL
)`
