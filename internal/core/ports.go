package core

import (
	"context"
	"iter"
	"time"
)

// Classifier is the external scoring capability
type Classifier interface {
	// Classify scores the legitimacy of an email text
	Classify(ctx context.Context, text string) (*ClassificationResult, error)
}

// FingerprintStore persists participation records keyed by fingerprint
type FingerprintStore interface {
	// Lookup returns the record for fp or ErrNotFound
	Lookup(ctx context.Context, fp Fingerprint) (*ParticipationRecord, error)

	// CreatePending inserts a pending record, failing with ErrAlreadyExists
	CreatePending(ctx context.Context, fp Fingerprint, params CreateParams) (*ParticipationRecord, error)

	// Transition applies change if the record still matches expect
	Transition(ctx context.Context, fp Fingerprint, expect Expect, change Change) (*ParticipationRecord, error)

	// DuePending lists pending records whose next attempt is due
	DuePending(ctx context.Context, now time.Time, limit int) ([]*ParticipationRecord, error)

	// Stats counts records by status
	Stats(ctx context.Context) (map[Status]int, error)
}

// RateToken authorises one outbound automation action
type RateToken interface {
	// Release returns the permit; calling it more than once is a no-op
	Release()
}

// RateLimiter is the chokepoint for all outbound automation
type RateLimiter interface {
	Acquire(ctx context.Context, timeout time.Duration) (RateToken, error)
}

// Page is one single-owner browser session
type Page interface {
	Open(ctx context.Context, url string) error
	LocateForm(ctx context.Context, hint FormHint) (*FormShape, error)
	SetField(ctx context.Context, name, value string) error
	Submit(ctx context.Context, hint FormHint) error
	DetectCaptcha(ctx context.Context) (bool, error)
	DetectConfirmation(ctx context.Context, patterns []string) error
	Close() error
}

// Browser hands out fresh page sessions
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// ProfileProvider supplies form values keyed by field name
type ProfileProvider interface {
	Fields(ctx context.Context) (map[string]string, error)
}

// EmailSource yields candidates for one poll cycle
type EmailSource interface {
	// Poll returns a lazy, finite sequence of candidates
	Poll(ctx context.Context) iter.Seq2[Candidate, error]

	// Ack marks a candidate as handled so it is not delivered again
	Ack(ctx context.Context, candidateID string) error
}

// Notifier escalates outcomes that need a human
type Notifier interface {
	Escalate(ctx context.Context, e Escalation) error
}

// AuditSink receives the append-only audit trail
type AuditSink interface {
	Write(ctx context.Context, entry AuditEntry) error
}

// SenderFilter decides whether a sender is refused outright
type SenderFilter interface {
	IsBlocked(sender string) bool
}

// AttemptResult is what one automation run reports back to the engine
type AttemptResult struct {
	Succeeded bool
	Kind      ErrorKind
	Err       error
	Filled    []string
	Missing   []string
}

// Automator runs one FormTask against an open page session
type Automator interface {
	Attempt(ctx context.Context, page Page, task FormTask) AttemptResult
}
