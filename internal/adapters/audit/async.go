package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

const writeTimeout = 5 * time.Second

// Async hands entries to a background writer so auditing never blocks the
// engine. Entries are dropped with a warning when the buffer is full.
type Async struct {
	sink    core.AuditSink
	logger  *zap.Logger
	entries chan core.AuditEntry
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewAsync starts the background writer
func NewAsync(sink core.AuditSink, buffer int, logger *zap.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		sink:    sink,
		logger:  logger,
		entries: make(chan core.AuditEntry, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := a.sink.Write(ctx, e); err != nil {
			a.logger.Warn("Audit write failed",
				zap.Error(err),
				zap.String("candidate_id", e.CandidateID))
		}
		cancel()
	}
}

// Write implements core.AuditSink
func (a *Async) Write(_ context.Context, e core.AuditEntry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}

	select {
	case a.entries <- e:
	default:
		a.dropped.Add(1)
		a.logger.Warn("Audit buffer full, entry dropped",
			zap.String("candidate_id", e.CandidateID),
			zap.String("decision", string(e.Decision)))
	}
	return nil
}

// Dropped returns how many entries were discarded
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close drains pending entries
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.entries)
	a.mu.Unlock()

	<-a.done
	return nil
}
