package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS participation (
		fingerprint TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt_at INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_attempt_at INTEGER NOT NULL DEFAULT 0,
		candidate_id TEXT NOT NULL DEFAULT '',
		target_url TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participation_due ON participation(status, next_attempt_at)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		candidate_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		decision TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT NOT NULL DEFAULT '',
		score REAL,
		confidence REAL,
		model_version TEXT,
		explanation TEXT,
		at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_candidate ON audit_log(candidate_id)`,
}

// SQLiteStore is a SQLite implementation of core.FingerprintStore and core.AuditSink
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer keeps the conditional updates serialised
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logger.Info("Opened SQLite participation store", zap.String("path", dbPath))

	return &SQLiteStore{sqlStore{
		db:     db,
		logger: logger,
		now:    time.Now,
		insertSQL: `INSERT INTO participation (` + recordColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(fingerprint) DO NOTHING`,
		isDuplicate: isSQLiteConstraint,
	}}, nil
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
