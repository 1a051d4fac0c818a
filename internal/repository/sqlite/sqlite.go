// Package sqlite implements repository.Store on an embedded SQLite file.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and
// cross-compilation keeps working. The whole database is one file on disk
// (or ":memory:" in tests).
//
// SCHEMA:
//
//	users          one row per email, presence columns inline
//	friendships    directional edges, PRIMARY KEY (user_id, friend_id)
//	groups         named groups with a creator
//	group_members  many-to-many join between groups and users
//
// Ids are INTEGER PRIMARY KEY AUTOINCREMENT so they line up with the hosted
// backend's bigserial ids.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/hangout/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/hangout.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database exists per connection. Pin the pool to one
	// connection so every query sees the same schema and rows.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is still reachable. Used by the readiness check.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every startup.
//
// "groups" is quoted throughout because GROUPS is an SQL keyword (window
// frame clause) in recent SQLite versions.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			email       TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			avatar_url  TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'available'
			            CHECK (status IN ('available', 'busy', 'offline')),
			active_room TEXT,
			last_seen   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_name ON users(name COLLATE NOCASE);
		CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS friendships (
			user_id    INTEGER NOT NULL REFERENCES users(id),
			friend_id  INTEGER NOT NULL REFERENCES users(id),
			status     TEXT NOT NULL DEFAULT 'accepted',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, friend_id)
		);
		CREATE INDEX IF NOT EXISTS idx_friendships_friend_id ON friendships(friend_id);
	`)
	if err != nil {
		return fmt.Errorf("creating friendships table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS "groups" (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			created_by INTEGER NOT NULL REFERENCES users(id),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS group_members (
			group_id  INTEGER NOT NULL REFERENCES "groups"(id) ON DELETE CASCADE,
			user_id   INTEGER NOT NULL REFERENCES users(id),
			joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating group tables: %w", err)
	}

	return nil
}
