// Package store is the durable SQLite storage behind places, canvases,
// painters, cooldowns, palettes and users.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")
)

type SQLite struct {
	db   *sql.DB
	once sync.Once
}

// Open opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway and ":memory:" is
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS Palette (
			palette_id INTEGER PRIMARY KEY,
			colors BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS Voxel (
			voxel_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			palette_id INTEGER NOT NULL,
			size_x INTEGER NOT NULL,
			size_y INTEGER NOT NULL,
			size_z INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			last_modified_at INTEGER NOT NULL,
			grid BLOB NOT NULL,
			FOREIGN KEY (palette_id) REFERENCES Palette (palette_id)
		);`,
		`CREATE TABLE IF NOT EXISTS Place (
			place_id INTEGER PRIMARY KEY,
			online INTEGER NOT NULL,
			cooldown INTEGER NOT NULL,
			voxel_id INTEGER NOT NULL,
			FOREIGN KEY (voxel_id) REFERENCES Voxel (voxel_id)
		);`,
		`CREATE TABLE IF NOT EXISTS PlaceUser (
			place_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			PRIMARY KEY (place_id, x, y, z)
		);`,
		`CREATE TABLE IF NOT EXISTS PlaceUserCooldown (
			place_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			cooldown INTEGER NOT NULL,
			PRIMARY KEY (place_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS User (
			user_id INTEGER PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			is_admin INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() { err = s.db.Close() })
	return err
}

// DB exposes the handle for maintenance tooling.
func (s *SQLite) DB() *sql.DB { return s.db }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
