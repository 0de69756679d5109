package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"game-sync-client/internal/logger"
)

// schemaVersion is tracked through PRAGMA user_version.
// v1: games table with domain columns only.
// v2: adds server_id, pending_sync, pending_op and the pending_operations table.
const schemaVersion = 2

const sqlCreateGames = `
CREATE TABLE IF NOT EXISTS games (
	local_id INTEGER PRIMARY KEY AUTOINCREMENT,
	home_team TEXT NOT NULL,
	away_team TEXT NOT NULL,
	home_score INTEGER NOT NULL DEFAULT 0,
	away_score INTEGER NOT NULL DEFAULT 0,
	date INTEGER NOT NULL,
	location TEXT NOT NULL,
	sport_type TEXT NOT NULL,
	status TEXT NOT NULL,
	notes TEXT,
	server_id INTEGER,
	pending_sync INTEGER NOT NULL DEFAULT 0,
	pending_op TEXT
)`

const sqlCreatePendingOperations = `
CREATE TABLE IF NOT EXISTS pending_operations (
	queue_id TEXT PRIMARY KEY,
	subject_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	payload BLOB
)`

var sqlMigrateV1toV2 = []string{
	"ALTER TABLE games ADD COLUMN server_id INTEGER",
	"ALTER TABLE games ADD COLUMN pending_sync INTEGER NOT NULL DEFAULT 0",
	"ALTER TABLE games ADD COLUMN pending_op TEXT",
	sqlCreatePendingOperations,
}

type Database struct {
	DB   *sql.DB
	Path string
}

func NewDatabase(path string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The store serializes writes through a single connection; sqlite
	// handles its own locking on top of that.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &Database{DB: db, Path: path}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Log.Info("Opened local database",
		zap.String("path", path),
		zap.Int("schemaVersion", schemaVersion),
	)

	return d, nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}

// migrate brings the schema to the current version. Migrations are additive:
// existing rows survive every step.
func (d *Database) migrate() error {
	var version int
	if err := d.DB.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read user_version: %w", err)
	}

	if version >= schemaVersion {
		return nil
	}

	return d.ExecTx(context.Background(), func(tx *sql.Tx) error {
		if version < 1 {
			if _, err := tx.Exec(sqlCreateGames); err != nil {
				return fmt.Errorf("create games table: %w", err)
			}
			if _, err := tx.Exec(sqlCreatePendingOperations); err != nil {
				return fmt.Errorf("create pending_operations table: %w", err)
			}
		} else if version < 2 {
			logger.Log.Info("Migrating database schema", zap.Int("from", version), zap.Int("to", 2))
			for _, stmt := range sqlMigrateV1toV2 {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration to v2: %w", err)
				}
			}
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		return nil
	})
}

// ExecTx executes a function within a transaction
func (d *Database) ExecTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}
