package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

// MemoryStore is an in-memory implementation of core.FingerprintStore.
// Records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[core.Fingerprint]*core.ParticipationRecord
	audit   []core.AuditEntry
	logger  *zap.Logger
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[core.Fingerprint]*core.ParticipationRecord),
		logger:  logger,
		now:     time.Now,
	}
}

// Lookup returns a copy of the record for fp
func (s *MemoryStore) Lookup(ctx context.Context, fp core.Fingerprint) (*core.ParticipationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fp]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// CreatePending inserts a new pending record
func (s *MemoryStore) CreatePending(ctx context.Context, fp core.Fingerprint, params core.CreateParams) (*core.ParticipationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[fp]; ok {
		return nil, core.ErrAlreadyExists
	}

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
	s.records[fp] = rec

	out := *rec
	return &out, nil
}

// Transition applies change if the record still matches expect
func (s *MemoryStore) Transition(ctx context.Context, fp core.Fingerprint, expect core.Expect, change core.Change) (*core.ParticipationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fp]
	if !ok {
		return nil, core.ErrNotFound
	}
	if err := core.CheckTransition(rec, expect, change); err != nil {
		return nil, err
	}

	updated := rec.Apply(change, s.now())
	s.records[fp] = updated

	out := *updated
	return &out, nil
}

// DuePending lists pending records due at or before now, oldest first
func (s *MemoryStore) DuePending(ctx context.Context, now time.Time, limit int) ([]*core.ParticipationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*core.ParticipationRecord
	for _, rec := range s.records {
		if rec.Status == core.StatusPending && !rec.NextAttemptAt.After(now) {
			out := *rec
			due = append(due, &out)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Stats counts records by status
func (s *MemoryStore) Stats(ctx context.Context) (map[core.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[core.Status]int)
	for _, rec := range s.records {
		stats[rec.Status]++
	}
	return stats, nil
}

// Write appends an audit entry
func (s *MemoryStore) Write(ctx context.Context, entry core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns the entries written so far
func (s *MemoryStore) AuditEntries() []core.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.AuditEntry(nil), s.audit...)
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
