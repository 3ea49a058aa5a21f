package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

const recordColumns = `fingerprint, status, attempts, last_attempt_at, last_error, next_attempt_at,
	candidate_id, target_url, version, created_at, updated_at`

// sqlStore holds the queries shared by the SQL backends. Timestamps are
// stored as unix nanoseconds so both dialects compare them the same way.
type sqlStore struct {
	db          *sql.DB
	logger      *zap.Logger
	now         func() time.Time
	insertSQL   string
	isDuplicate func(error) bool
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Lookup returns the record for fp
func (s *sqlStore) Lookup(ctx context.Context, fp core.Fingerprint) (*core.ParticipationRecord, error) {
	return lookup(ctx, s.db, fp)
}

func lookup(ctx context.Context, q rowQuerier, fp core.Fingerprint) (*core.ParticipationRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM participation WHERE fingerprint = ?`, string(fp))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, core.StorageError("lookup", err)
	}
	return rec, nil
}

// CreatePending inserts a new pending record
func (s *sqlStore) CreatePending(ctx context.Context, fp core.Fingerprint, params core.CreateParams) (*core.ParticipationRecord, error) {
	now := s.now()
	rec := &core.ParticipationRecord{
		Fingerprint:   fp,
		Status:        core.StatusPending,
		CandidateID:   params.CandidateID,
		TargetURL:     params.TargetURL,
		NextAttemptAt: params.NextAttemptAt,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	res, err := s.db.ExecContext(ctx, s.insertSQL,
		string(fp), string(rec.Status), rec.Attempts, toNanos(rec.LastAttemptAt), string(rec.LastError),
		toNanos(rec.NextAttemptAt), rec.CandidateID, rec.TargetURL, rec.Version,
		toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt))
	if err != nil {
		if s.isDuplicate(err) {
			return nil, core.ErrAlreadyExists
		}
		return nil, core.StorageError("create pending", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, core.StorageError("create pending", err)
	}
	if n == 0 {
		return nil, core.ErrAlreadyExists
	}
	return rec, nil
}

// Transition applies change with a conditional UPDATE and reads the row
// back inside the same transaction
func (s *sqlStore) Transition(ctx context.Context, fp core.Fingerprint, expect core.Expect, change core.Change) (*core.ParticipationRecord, error) {
	if !expect.Status.CanTransition(change.Status) {
		return nil, core.NewError(core.KindInvalidTransition, "transition",
			fmt.Errorf("%s -> %s not allowed", expect.Status, change.Status))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.StorageError("transition", err)
	}
	defer tx.Rollback()

	now := s.now()
	res, err := tx.ExecContext(ctx, `
		UPDATE participation
		SET status = ?, attempts = ?, last_attempt_at = ?, last_error = ?, next_attempt_at = ?,
			version = version + 1, updated_at = ?
		WHERE fingerprint = ? AND status = ? AND version = ?
	`, string(change.Status), change.Attempts, toNanos(change.LastAttemptAt), string(change.LastError),
		toNanos(change.NextAttemptAt), toNanos(now),
		string(fp), string(expect.Status), expect.Version)
	if err != nil {
		return nil, core.StorageError("transition", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, core.StorageError("transition", err)
	}

	current, err := lookup(ctx, tx, fp)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := core.CheckTransition(current, expect, change); err != nil {
			return nil, err
		}
		return nil, core.ErrInvalidTransition
	}

	if err := tx.Commit(); err != nil {
		return nil, core.StorageError("transition", err)
	}
	return current, nil
}

// DuePending lists pending records due at or before now, oldest first
func (s *sqlStore) DuePending(ctx context.Context, now time.Time, limit int) ([]*core.ParticipationRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM participation
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at
		LIMIT ?
	`, string(core.StatusPending), toNanos(now), limit)
	if err != nil {
		return nil, core.StorageError("due pending", err)
	}
	defer rows.Close()

	var due []*core.ParticipationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, core.StorageError("due pending", err)
		}
		due = append(due, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("due pending", err)
	}
	return due, nil
}

// Stats counts records by status
func (s *sqlStore) Stats(ctx context.Context) (map[core.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM participation GROUP BY status`)
	if err != nil {
		return nil, core.StorageError("stats", err)
	}
	defer rows.Close()

	stats := make(map[core.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, core.StorageError("stats", err)
		}
		stats[core.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("stats", err)
	}
	return stats, nil
}

// Write appends an audit entry to audit_log
func (s *sqlStore) Write(ctx context.Context, entry core.AuditEntry) error {
	var score, confidence sql.NullFloat64
	var model, explanation sql.NullString
	if c := entry.Classification; c != nil {
		score = sql.NullFloat64{Float64: c.Score, Valid: true}
		confidence = sql.NullFloat64{Float64: c.Confidence, Valid: true}
		model = sql.NullString{String: c.ModelVersion, Valid: true}
		explanation = sql.NullString{String: c.Explanation, Valid: c.Explanation != ""}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, candidate_id, fingerprint, decision, status, attempts, error_kind,
			score, confidence, model_version, explanation, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.CandidateID, string(entry.Fingerprint), string(entry.Decision), string(entry.Status),
		entry.Attempts, string(entry.ErrorKind), score, confidence, model, explanation, toNanos(entry.At))
	if err != nil {
		return core.StorageError("audit", err)
	}
	return nil
}

// AuditTrail returns the audit entries for a candidate in write order
func (s *sqlStore) AuditTrail(ctx context.Context, candidateID string) ([]core.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, fingerprint, decision, status, attempts, error_kind,
			score, confidence, model_version, explanation, at
		FROM audit_log
		WHERE candidate_id = ?
		ORDER BY at, id
	`, candidateID)
	if err != nil {
		return nil, core.StorageError("audit trail", err)
	}
	defer rows.Close()

	var entries []core.AuditEntry
	for rows.Next() {
		var e core.AuditEntry
		var fp, decision, status, kind string
		var score, confidence sql.NullFloat64
		var model, explanation sql.NullString
		var at int64
		if err := rows.Scan(&e.ID, &e.CandidateID, &fp, &decision, &status, &e.Attempts, &kind,
			&score, &confidence, &model, &explanation, &at); err != nil {
			return nil, core.StorageError("audit trail", err)
		}
		e.Fingerprint = core.Fingerprint(fp)
		e.Decision = core.Decision(decision)
		e.Status = core.Status(status)
		e.ErrorKind = core.ErrorKind(kind)
		e.At = fromNanos(at)
		if score.Valid {
			e.Classification = &core.ClassificationResult{
				Score:        score.Float64,
				Confidence:   confidence.Float64,
				ModelVersion: model.String,
				Explanation:  explanation.String,
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("audit trail", err)
	}
	return entries, nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
		return err
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*core.ParticipationRecord, error) {
	var rec core.ParticipationRecord
	var fp, status, lastError string
	var lastAttempt, nextAttempt, created, updated int64
	if err := row.Scan(&fp, &status, &rec.Attempts, &lastAttempt, &lastError, &nextAttempt,
		&rec.CandidateID, &rec.TargetURL, &rec.Version, &created, &updated); err != nil {
		return nil, err
	}
	rec.Fingerprint = core.Fingerprint(fp)
	rec.Status = core.Status(status)
	rec.LastError = core.ErrorKind(lastError)
	rec.LastAttemptAt = fromNanos(lastAttempt)
	rec.NextAttemptAt = fromNanos(nextAttempt)
	rec.CreatedAt = fromNanos(created)
	rec.UpdatedAt = fromNanos(updated)
	return &rec, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
