package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS participation (
		fingerprint CHAR(64) PRIMARY KEY,
		status VARCHAR(32) NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_attempt_at BIGINT NOT NULL DEFAULT 0,
		last_error VARCHAR(64) NOT NULL DEFAULT '',
		next_attempt_at BIGINT NOT NULL DEFAULT 0,
		candidate_id VARCHAR(255) NOT NULL DEFAULT '',
		target_url TEXT NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		INDEX idx_participation_due (status, next_attempt_at)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id CHAR(36) PRIMARY KEY,
		candidate_id VARCHAR(255) NOT NULL,
		fingerprint VARCHAR(64) NOT NULL DEFAULT '',
		decision VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT '',
		attempts INT NOT NULL DEFAULT 0,
		error_kind VARCHAR(64) NOT NULL DEFAULT '',
		score DOUBLE NULL,
		confidence DOUBLE NULL,
		model_version VARCHAR(255) NULL,
		explanation TEXT NULL,
		at BIGINT NOT NULL,
		INDEX idx_audit_candidate (candidate_id)
	)`,
}

// MySQLStore is a MySQL implementation of core.FingerprintStore and
// core.AuditSink, for workers on several hosts sharing one ledger
type MySQLStore struct {
	sqlStore
}

// NewMySQLStore connects to dsn and creates the tables if needed
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	for _, stmt := range mysqlSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logger.Info("Connected to MySQL participation store")

	return &MySQLStore{sqlStore{
		db:     db,
		logger: logger,
		now:    time.Now,
		insertSQL: `INSERT INTO participation (` + recordColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		isDuplicate: isMySQLDuplicate,
	}}, nil
}

func isMySQLDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
