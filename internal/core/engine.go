package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/utils"
)

// finalWriteTimeout bounds record and audit writes that must land even
// after shutdown has cancelled the attempt context
const finalWriteTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/mikey/giveaway-engine/internal/core")

// EngineConfig holds the engine's tunables
type EngineConfig struct {
	MaxAttempts          int
	RetryBase            time.Duration
	RetryMax             time.Duration
	Lease                time.Duration
	AcquireTimeout       time.Duration
	TaskDeadline         time.Duration
	Hint                 FormHint
	ConfirmationPatterns []string
	Aliases              map[string]string
}

// EngineDeps are the collaborators the engine drives
type EngineDeps struct {
	Store      FingerprintStore
	Classifier *ClassifierAdapter
	Limiter    RateLimiter
	Browser    Browser
	Automator  Automator
	Profile    ProfileProvider
	Notifier   Notifier
	Audit      AuditSink
	Senders    SenderFilter
}

// Outcome is what happened to one candidate or resumed record
type Outcome struct {
	CandidateID    string
	Fingerprint    Fingerprint
	Decision       Decision
	Status         Status
	Attempts       int
	Kind           ErrorKind
	Classification *ClassificationResult
	Err            error
}

// Engine turns candidates into at most one participation per fingerprint
type Engine struct {
	deps   EngineDeps
	cfg    EngineConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a new decision and participation engine
func NewEngine(deps EngineDeps, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the engine's time source
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Backoff returns the delay before retry number attempts+1
func (e *Engine) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := e.cfg.RetryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if e.cfg.RetryMax > 0 && d >= e.cfg.RetryMax {
			return e.cfg.RetryMax
		}
	}
	if e.cfg.RetryMax > 0 && d > e.cfg.RetryMax {
		return e.cfg.RetryMax
	}
	return d
}

// Process runs one candidate through dedup, classification and, when it
// qualifies, a single participation attempt
func (e *Engine) Process(ctx context.Context, c Candidate) Outcome {
	fp := ComputeFingerprint(c)
	ctx, span := tracer.Start(ctx, "engine.process", trace.WithAttributes(
		attribute.String("candidate.id", c.ID),
		attribute.String("fingerprint", fp.Short()),
	))
	defer span.End()

	out := e.process(ctx, c, fp)
	span.SetAttributes(attribute.String("decision", string(out.Decision)))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.Kind))
	}
	e.audit(ctx, out)
	return out
}

func (e *Engine) process(ctx context.Context, c Candidate, fp Fingerprint) Outcome {
	out := Outcome{CandidateID: c.ID, Fingerprint: fp}
	log := e.logger.With(zap.String("candidate_id", c.ID), zap.String("fingerprint", fp.Short()))

	if e.deps.Senders != nil && e.deps.Senders.IsBlocked(c.Sender) {
		log.Info("Sender domain blocked", zap.String("sender", c.Sender))
		out.Decision = DecisionBlockedSender
		return out
	}

	existing, err := e.deps.Store.Lookup(ctx, fp)
	switch {
	case err == nil:
		log.Info("Duplicate giveaway skipped", zap.String("status", string(existing.Status)))
		return e.withRecord(out, DecisionSkippedDuplicate, existing)
	case !errors.Is(err, ErrNotFound):
		log.Error("Fingerprint lookup failed", zap.Error(err))
		return e.deferred(ctx, out, err)
	}

	result, err := e.deps.Classifier.Score(ctx, c)
	if err != nil {
		log.Warn("Classifier unavailable", zap.Error(err))
		return e.deferred(ctx, out, err)
	}
	out.Classification = result

	if verdict := e.deps.Classifier.Verdict(result); verdict != DecisionParticipate {
		log.Info("Candidate not legitimate enough",
			zap.String("decision", string(verdict)),
			zap.Float64("score", result.Score),
			zap.Float64("confidence", result.Confidence))
		out.Decision = verdict
		return out
	}

	target := utils.FirstEntryLink(c.Body)
	rec, err := e.deps.Store.CreatePending(ctx, fp, CreateParams{
		CandidateID:   c.ID,
		TargetURL:     target,
		NextAttemptAt: e.now().Add(e.cfg.Lease),
	})
	switch {
	case errors.Is(err, ErrAlreadyExists):
		log.Info("Lost race for fingerprint")
		out.Decision = DecisionLostRace
		out.Kind = KindAlreadyExists
		return out
	case err != nil:
		log.Error("Failed to create participation record", zap.Error(err))
		return e.deferred(ctx, out, err)
	}

	if target == "" {
		log.Info("No entry link found in candidate")
		failed, err := e.finish(ctx, rec, Change{
			Status:        StatusFailed,
			Attempts:      rec.Attempts,
			LastAttemptAt: rec.LastAttemptAt,
			LastError:     KindTargetInvalid,
		})
		if err != nil {
			return e.abandoned(out, rec, err)
		}
		out.Kind = KindTargetInvalid
		return e.withRecord(out, DecisionNoTarget, failed)
	}

	return e.attempt(ctx, rec, out)
}

// Resume runs the next attempt for a due pending record
func (e *Engine) Resume(ctx context.Context, rec *ParticipationRecord) Outcome {
	ctx, span := tracer.Start(ctx, "engine.resume", trace.WithAttributes(
		attribute.String("candidate.id", rec.CandidateID),
		attribute.String("fingerprint", rec.Fingerprint.Short()),
		attribute.Int("attempts", rec.Attempts),
	))
	defer span.End()

	out := Outcome{CandidateID: rec.CandidateID, Fingerprint: rec.Fingerprint}
	switch {
	case rec.Status != StatusPending:
		out = e.withRecord(out, DecisionAbandoned, rec)
		out.Kind = KindInvalidTransition
	case rec.Attempts >= e.cfg.MaxAttempts:
		// a shutdown left the final attempt unsettled
		kind := rec.LastError
		if kind == KindNone {
			kind = KindAborted
		}
		updated, err := e.finish(ctx, rec, Change{
			Status:        StatusFailed,
			Attempts:      rec.Attempts,
			LastAttemptAt: rec.LastAttemptAt,
			LastError:     kind,
		})
		out.Kind = kind
		if err != nil {
			out = e.abandoned(out, rec, err)
		} else {
			out = e.withRecord(out, DecisionFailed, updated)
		}
	case rec.TargetURL == "":
		updated, err := e.finish(ctx, rec, Change{
			Status:        StatusFailed,
			Attempts:      rec.Attempts,
			LastAttemptAt: rec.LastAttemptAt,
			LastError:     KindTargetInvalid,
		})
		out.Kind = KindTargetInvalid
		if err != nil {
			out = e.abandoned(out, rec, err)
		} else {
			out = e.withRecord(out, DecisionNoTarget, updated)
		}
	default:
		out = e.attempt(ctx, rec, out)
	}

	span.SetAttributes(attribute.String("decision", string(out.Decision)))
	e.audit(ctx, out)
	return out
}

// attempt claims the record, acquires a rate token and drives one
// automation run, then settles the record by the outcome's error class
func (e *Engine) attempt(ctx context.Context, rec *ParticipationRecord, out Outcome) Outcome {
	log := e.logger.With(zap.String("candidate_id", out.CandidateID), zap.String("fingerprint", rec.Fingerprint.Short()))

	now := e.now()
	claimed, err := e.deps.Store.Transition(ctx, rec.Fingerprint, ExpectOf(rec), Change{
		Status:        StatusPending,
		Attempts:      rec.Attempts + 1,
		LastAttemptAt: now,
		LastError:     rec.LastError,
		NextAttemptAt: now.Add(e.cfg.Lease),
	})
	if err != nil {
		log.Warn("Could not claim participation record", zap.Error(err))
		return e.abandoned(out, rec, err)
	}

	ctx, span := tracer.Start(ctx, "engine.attempt", trace.WithAttributes(
		attribute.Int("attempt", claimed.Attempts),
		attribute.String("target", claimed.TargetURL),
	))
	defer span.End()

	token, err := e.deps.Limiter.Acquire(ctx, e.cfg.AcquireTimeout)
	if err != nil {
		log.Warn("Rate limiter refused attempt", zap.Error(err))
		return e.settle(ctx, claimed, out, KindOf(err), err)
	}
	defer token.Release()

	fields, err := e.deps.Profile.Fields(ctx)
	if err != nil {
		log.Error("Profile unavailable", zap.Error(err))
		return e.settle(ctx, claimed, out, KindIncompleteMapping, err)
	}

	page, err := e.deps.Browser.NewPage(ctx)
	if err != nil {
		kind := KindNavigation
		if ctx.Err() != nil {
			kind = KindAborted
		}
		log.Warn("Failed to open browser page", zap.Error(err))
		return e.settle(ctx, claimed, out, kind, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug("Failed to close page", zap.Error(err))
		}
	}()

	task := FormTask{
		ID:                   uuid.NewString(),
		Fingerprint:          claimed.Fingerprint,
		TargetURL:            claimed.TargetURL,
		Hint:                 e.cfg.Hint,
		Fields:               fields,
		Aliases:              e.cfg.Aliases,
		ConfirmationPatterns: e.cfg.ConfirmationPatterns,
	}
	if e.cfg.TaskDeadline > 0 {
		task.Deadline = e.now().Add(e.cfg.TaskDeadline)
	}

	log.Info("Starting participation attempt",
		zap.String("task_id", task.ID),
		zap.Int("attempt", claimed.Attempts),
		zap.String("target", task.TargetURL))

	res := e.deps.Automator.Attempt(ctx, page, task)
	if !res.Succeeded && res.Kind == KindNone {
		res.Kind = KindAutomationFailure
	}
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	return e.settle(ctx, claimed, out, res.Kind, res.Err)
}

// settle moves a claimed record to the status implied by kind
func (e *Engine) settle(ctx context.Context, rec *ParticipationRecord, out Outcome, kind ErrorKind, cause error) Outcome {
	log := e.logger.With(zap.String("candidate_id", out.CandidateID), zap.String("fingerprint", rec.Fingerprint.Short()))
	out.Kind = kind
	out.Err = cause

	change := Change{
		Attempts:      rec.Attempts,
		LastAttemptAt: rec.LastAttemptAt,
		LastError:     kind,
	}
	var decision Decision

	switch kind.Class() {
	case ClassNone:
		change.Status = StatusSucceeded
		decision = DecisionSucceeded
	case ClassEscalation:
		change.Status = StatusRequiresHuman
		decision = DecisionEscalated
	case ClassTransient:
		if rec.Attempts >= e.cfg.MaxAttempts {
			change.Status = StatusFailed
			decision = DecisionFailed
		} else {
			change.Status = StatusPending
			change.NextAttemptAt = e.now().Add(e.Backoff(rec.Attempts))
			decision = DecisionRequeued
		}
	case ClassPermanent:
		change.Status = StatusFailed
		decision = DecisionFailed
	case ClassAborted:
		// an aborted attempt does not count; if the hand-back write fails
		// the lease still returns the record to the next run
		change.Status = StatusPending
		change.Attempts = max(rec.Attempts-1, 0)
		change.LastError = rec.LastError
		change.NextAttemptAt = e.now()
		released, err := e.finish(ctx, rec, change)
		if err != nil {
			log.Warn("Failed to hand back aborted attempt", zap.Int("attempt", rec.Attempts), zap.Error(err))
			return e.withRecord(out, DecisionAborted, rec)
		}
		log.Info("Attempt aborted by shutdown", zap.Int("attempt", rec.Attempts))
		return e.withRecord(out, DecisionAborted, released)
	default:
		log.Error("Attempt ended in unexpected state", zap.String("kind", string(kind)), zap.Error(cause))
		return e.withRecord(out, DecisionAbandoned, rec)
	}

	updated, err := e.finish(ctx, rec, change)
	if err != nil {
		log.Error("Failed to record attempt outcome",
			zap.String("status", string(change.Status)),
			zap.Error(err))
		return e.abandoned(out, rec, err)
	}

	switch decision {
	case DecisionSucceeded:
		log.Info("Participation succeeded", zap.Int("attempts", updated.Attempts))
	case DecisionEscalated:
		log.Warn("Participation requires a human", zap.String("reason", string(kind)))
		e.escalate(ctx, updated, kind)
	case DecisionRequeued:
		log.Info("Participation requeued",
			zap.String("kind", string(kind)),
			zap.Int("attempts", updated.Attempts),
			zap.Time("next_attempt_at", updated.NextAttemptAt))
	default:
		log.Warn("Participation failed",
			zap.String("kind", string(kind)),
			zap.Int("attempts", updated.Attempts),
			zap.Error(cause))
	}

	return e.withRecord(out, decision, updated)
}

// finish writes a transition with a context that survives shutdown, so a
// completed attempt is never left looking unsettled
func (e *Engine) finish(ctx context.Context, rec *ParticipationRecord, change Change) (*ParticipationRecord, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	return e.deps.Store.Transition(wctx, rec.Fingerprint, ExpectOf(rec), change)
}

func (e *Engine) escalate(ctx context.Context, rec *ParticipationRecord, reason ErrorKind) {
	if e.deps.Notifier == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()

	err := e.deps.Notifier.Escalate(wctx, Escalation{
		Fingerprint: rec.Fingerprint,
		CandidateID: rec.CandidateID,
		TargetURL:   rec.TargetURL,
		Reason:      reason,
		Attempts:    rec.Attempts,
		At:          e.now(),
	})
	if err != nil {
		e.logger.Error("Failed to send escalation",
			zap.String("fingerprint", rec.Fingerprint.Short()),
			zap.Error(err))
	}
}

func (e *Engine) audit(ctx context.Context, out Outcome) {
	if e.deps.Audit == nil {
		return
	}
	entry := AuditEntry{
		ID:             uuid.NewString(),
		CandidateID:    out.CandidateID,
		Fingerprint:    out.Fingerprint,
		Classification: out.Classification,
		Decision:       out.Decision,
		Status:         out.Status,
		Attempts:       out.Attempts,
		ErrorKind:      out.Kind,
		At:             e.now(),
	}
	if err := e.deps.Audit.Write(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("Failed to write audit entry",
			zap.String("candidate_id", out.CandidateID),
			zap.Error(err))
	}
}

func (e *Engine) withRecord(out Outcome, d Decision, rec *ParticipationRecord) Outcome {
	out.Decision = d
	if rec != nil {
		out.Status = rec.Status
		out.Attempts = rec.Attempts
	}
	return out
}

// deferred reports a candidate that must be delivered again later
func (e *Engine) deferred(ctx context.Context, out Outcome, err error) Outcome {
	out.Decision = DecisionDeferred
	out.Kind = KindOf(err)
	out.Err = err
	if ctx.Err() != nil {
		out.Decision = DecisionAborted
		out.Kind = KindAborted
	}
	return out
}

// abandoned leaves the record untouched after an integrity or storage error
func (e *Engine) abandoned(out Outcome, rec *ParticipationRecord, err error) Outcome {
	out = e.withRecord(out, DecisionAbandoned, rec)
	out.Kind = KindOf(err)
	out.Err = err
	return out
}

// GiveUp settles a candidate that kept being deferred. It is recorded as
// failed so the source can forget it.
func (e *Engine) GiveUp(ctx context.Context, out Outcome) Outcome {
	e.logger.Warn("Giving up on repeatedly deferred candidate",
		zap.String("candidate_id", out.CandidateID),
		zap.String("kind", string(out.Kind)))
	out.Decision = DecisionFailed
	e.audit(ctx, out)
	return out
}
