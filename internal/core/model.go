package core

import (
	"fmt"
	"time"
)

// Candidate is one email under evaluation. It is never mutated after the
// source produces it.
type Candidate struct {
	ID         string
	Source     string
	RawRef     string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Text returns the content handed to the classifier
func (c Candidate) Text() string {
	return c.Subject + "\n" + c.Body
}

// Fingerprint is the deduplication key for a giveaway email
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// Short returns a prefix suitable for log lines
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// ClassificationResult represents the legitimacy verdict for one candidate
type ClassificationResult struct {
	Score        float64
	Confidence   float64
	ModelVersion string
	Explanation  string
	AnalyzedAt   time.Time
}

// Status is the persisted state of a participation record
type Status string

const (
	StatusPending          Status = "pending"
	StatusSucceeded        Status = "succeeded"
	StatusFailed           Status = "failed"
	StatusSkippedDuplicate Status = "skipped_duplicate"
	StatusRequiresHuman    Status = "requires_human"
)

// Terminal reports whether no further transition is allowed out of s
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkippedDuplicate, StatusRequiresHuman:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// CanTransition reports whether a record may move from s to next.
// pending -> pending is the bounded retry loop; everything else is one-way.
func (s Status) CanTransition(next Status) bool {
	if s != StatusPending {
		return false
	}
	switch next {
	case StatusPending, StatusSucceeded, StatusFailed, StatusRequiresHuman:
		return true
	default:
		return false
	}
}

// ParticipationRecord is the dedup ledger entry for a fingerprint
type ParticipationRecord struct {
	Fingerprint   Fingerprint
	Status        Status
	Attempts      int
	LastAttemptAt time.Time
	LastError     ErrorKind
	NextAttemptAt time.Time
	CandidateID   string
	TargetURL     string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateParams carries the initial values of a new pending record
type CreateParams struct {
	CandidateID   string
	TargetURL     string
	NextAttemptAt time.Time
}

// Expect is the compare half of a compare-and-set transition
type Expect struct {
	Status  Status
	Version int64
}

// ExpectOf returns the expectation matching the given record
func ExpectOf(r *ParticipationRecord) Expect {
	return Expect{Status: r.Status, Version: r.Version}
}

// Change is the set half of a compare-and-set transition
type Change struct {
	Status        Status
	Attempts      int
	LastAttemptAt time.Time
	LastError     ErrorKind
	NextAttemptAt time.Time
}

// FormHint describes where the entry form lives on the page
type FormHint struct {
	FormSelector   string
	SubmitSelector string
}

// FormTask is the page-automation job for one attempt
type FormTask struct {
	ID                   string
	Fingerprint          Fingerprint
	TargetURL            string
	Hint                 FormHint
	Fields               map[string]string
	Aliases              map[string]string
	ConfirmationPatterns []string
	Deadline             time.Time
}

// FormField is one input discovered on a located form
type FormField struct {
	Name     string
	Type     string
	Required bool
}

// FormShape is what Page.LocateForm reports about the form
type FormShape struct {
	Fields []FormField
}

// Decision is what the engine did with a candidate or attempt
type Decision string

const (
	DecisionParticipate      Decision = "participate"
	DecisionSkippedDuplicate Decision = "skipped_duplicate"
	DecisionBelowThreshold   Decision = "below_threshold"
	DecisionLowConfidence    Decision = "low_confidence"
	DecisionBlockedSender    Decision = "blocked_sender"
	DecisionNoTarget         Decision = "no_target"
	DecisionLostRace         Decision = "lost_race"
	DecisionDeferred         Decision = "deferred"
	DecisionRequeued         Decision = "requeued"
	DecisionAbandoned        Decision = "abandoned"
	DecisionEscalated        Decision = "escalated"
	DecisionSucceeded        Decision = "succeeded"
	DecisionFailed           Decision = "failed"
	DecisionAborted          Decision = "aborted"
)

// Settled reports whether the source may forget the candidate.
// Deferred and aborted candidates must be re-delivered.
func (d Decision) Settled() bool {
	return d != DecisionDeferred && d != DecisionAborted
}

// AuditEntry is one append-only audit log record
type AuditEntry struct {
	ID             string
	CandidateID    string
	Fingerprint    Fingerprint
	Classification *ClassificationResult
	Decision       Decision
	Status         Status
	Attempts       int
	ErrorKind      ErrorKind
	At             time.Time
}

// Escalation is the notice sent when a human has to finish an entry
type Escalation struct {
	Fingerprint Fingerprint
	CandidateID string
	TargetURL   string
	Reason      ErrorKind
	Attempts    int
	At          time.Time
}

// CheckTransition validates a compare-and-set against the current record
func CheckTransition(current *ParticipationRecord, expect Expect, change Change) error {
	if current.Status != expect.Status || current.Version != expect.Version {
		return NewError(KindInvalidTransition, "transition",
			fmt.Errorf("record is %s@%d, expected %s@%d", current.Status, current.Version, expect.Status, expect.Version))
	}
	if !current.Status.CanTransition(change.Status) {
		return NewError(KindInvalidTransition, "transition",
			fmt.Errorf("%s -> %s not allowed", current.Status, change.Status))
	}
	return nil
}

// Apply returns a copy of r with change applied and the version bumped
func (r ParticipationRecord) Apply(change Change, at time.Time) *ParticipationRecord {
	r.Status = change.Status
	r.Attempts = change.Attempts
	r.LastAttemptAt = change.LastAttemptAt
	r.LastError = change.LastError
	r.NextAttemptAt = change.NextAttemptAt
	r.Version++
	r.UpdatedAt = at
	return &r
}
