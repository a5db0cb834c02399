// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package database provides the DuckDB-backed durable exclusion store. It
// is the remote tier: exclusions written here outlive sessions and process
// restarts, keyed by listener identity.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tunebloom/tunebloom/internal/config"
	"github.com/tunebloom/tunebloom/internal/store"
)

// DB wraps the DuckDB connection and provides exclusion data access.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// Ensure DB implements ExclusionStore
var _ store.ExclusionStore = (*DB)(nil)

// New creates a new database connection and initializes the schema.
// Path ":memory:" opens an in-memory database, used in tests.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	path := cfg.Path
	if path != ":memory:" && path != "" {
		// Ensure parent directory exists for the database file.
		dbDir := filepath.Dir(path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}
	if path == ":memory:" {
		path = ""
	}

	connStr := path
	if cfg.MaxMemory != "" {
		connStr = fmt.Sprintf("%s?max_memory=%s", path, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// DuckDB is embedded; a small pool avoids writer contention.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn, cfg: cfg}

	if err := db.initialize(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates the schema if it does not exist.
func (db *DB) initialize() error {
	schema := `
		CREATE TABLE IF NOT EXISTS excluded_tracks (
			user_id    VARCHAR NOT NULL,
			track_id   VARCHAR NOT NULL,
			reason     VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, track_id)
		)`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("create excluded_tracks table: %w", err)
	}
	return nil
}

// ExcludedTrackIDs returns the excluded track IDs for a listener, oldest
// first.
func (db *DB) ExcludedTrackIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT track_id FROM excluded_tracks WHERE user_id = ? ORDER BY created_at, track_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exclusions: %w", err)
	}
	return ids, nil
}

// AddExcluded records track IDs as excluded. Re-adding an existing
// exclusion keeps the original row, so the first reason and timestamp win.
func (db *DB) AddExcluded(ctx context.Context, userID string, trackIDs []string, reason store.Reason) error {
	if len(trackIDs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exclusion insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO excluded_tracks (user_id, track_id, reason) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare exclusion insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range trackIDs {
		if id == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, userID, id, string(reason)); err != nil {
			return fmt.Errorf("insert exclusion %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exclusion insert: %w", err)
	}
	return nil
}

// RemoveExcluded deletes a single exclusion. Removing an absent row is not
// an error.
func (db *DB) RemoveExcluded(ctx context.Context, userID, trackID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM excluded_tracks WHERE user_id = ? AND track_id = ?`,
		userID, trackID); err != nil {
		return fmt.Errorf("delete exclusion: %w", err)
	}
	return nil
}

// Clear deletes every exclusion for a listener. Maintenance helper;
// nothing in the recommendation path wipes persisted exclusions.
func (db *DB) Clear(ctx context.Context, userID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM excluded_tracks WHERE user_id = ?`,
		userID); err != nil {
		return fmt.Errorf("clear exclusions: %w", err)
	}
	return nil
}

// CountExcluded returns the number of exclusions stored for a listener.
func (db *DB) CountExcluded(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM excluded_tracks WHERE user_id = ?`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count exclusions: %w", err)
	}
	return count, nil
}

// Ping verifies the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
