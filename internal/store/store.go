package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a database at user_version i to i+1. Version 0 is
// a database created by schema.sql before versioning existed.
var migrations = []func(*sql.Tx) error{
	addDriftIndex,
}

// SchemaVersion is the user_version of a fully migrated database.
var SchemaVersion = len(migrations)

// ErrSchemaTooNew is returned when a database was written by a newer build.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// Store is the run history database.
type Store struct {
	db       *sql.DB
	readOnly bool
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	readOnly    bool
	busyTimeout int // milliseconds
}

// ReadOnly opens an existing database without creating or migrating it,
// and sets query_only on the connection. history and trace use it so that
// a typo in --db never creates a file.
func ReadOnly() Option {
	return func(c *openConfig) { c.readOnly = true }
}

// dsn builds a go-sqlite3 URI. The driver applies the underscore
// parameters as pragmas on every new connection.
func (c openConfig) dsn(path string) string {
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(c.busyTimeout))
	q.Set("_foreign_keys", "on")
	if c.readOnly {
		q.Set("mode", "rw")
	} else {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + escapePath(path) + "?" + q.Encode()
}

// escapePath percent-encodes each segment so that '?', '#' and '%' in a
// file name reach SQLite as part of the path.
func escapePath(path string) string {
	segs := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

// Open opens the history database at path, creating and migrating it
// unless ReadOnly is given. Writes are serialized through one connection.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := openConfig{busyTimeout: 5000}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", cfg.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.readOnly {
		err = checkVersion(db)
		if err == nil {
			_, err = db.Exec("PRAGMA query_only = ON")
		}
	} else {
		err = migrate(db)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Store{db: db, readOnly: cfg.readOnly}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func userVersion(q interface{ QueryRow(string, ...any) *sql.Row }) (int, error) {
	var v int
	if err := q.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return v, nil
}

func checkVersion(db *sql.DB) error {
	v, err := userVersion(db)
	if err != nil {
		return err
	}
	switch {
	case v > SchemaVersion:
		return fmt.Errorf("%w: version %d, want %d", ErrSchemaTooNew, v, SchemaVersion)
	case v < SchemaVersion:
		return fmt.Errorf("database schema version %d needs migrating to %d; open it once for writing", v, SchemaVersion)
	}
	return nil
}

// migrate creates missing tables and then applies each pending migration
// in its own transaction, bumping user_version as it goes.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	v, err := userVersion(db)
	if err != nil {
		return err
	}
	if v > SchemaVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrSchemaTooNew, v, SchemaVersion)
	}
	for ; v < SchemaVersion; v++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// addDriftIndex backs LastRun: the newest run of a suite hash under one
// evaluator label.
func addDriftIndex(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_drift ON runs (suite_hash, evaluator, seq)`)
	return err
}

// pragma reads a single pragma value.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
