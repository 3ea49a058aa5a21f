package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind names a failure in the participation pipeline
type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindNavigation            ErrorKind = "navigation_error"
	KindClassifierUnavailable ErrorKind = "classifier_unavailable"
	KindRateLimitTimeout      ErrorKind = "rate_limit_timeout"
	KindSubmitTimeout         ErrorKind = "submit_timeout"
	KindDeadlineExceeded      ErrorKind = "deadline_exceeded"
	KindTargetInvalid         ErrorKind = "target_invalid"
	KindFormNotFound          ErrorKind = "form_not_found"
	KindIncompleteMapping     ErrorKind = "incomplete_mapping"
	KindAutomationFailure     ErrorKind = "automation_failure"
	KindCaptchaBlocked        ErrorKind = "captcha_blocked"
	KindAlreadyExists         ErrorKind = "already_exists"
	KindInvalidTransition     ErrorKind = "invalid_transition"
	KindNotFound              ErrorKind = "not_found"
	KindStorageUnavailable    ErrorKind = "storage_unavailable"
	KindAborted               ErrorKind = "aborted"
)

// ErrorClass groups kinds by how the engine reacts to them
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	// ClassTransient failures are retried with backoff up to the attempt cap
	ClassTransient
	// ClassPermanent failures are recorded as failed and never retried
	ClassPermanent
	// ClassEscalation failures are handed to a human
	ClassEscalation
	// ClassIntegrity failures abandon the candidate without touching state
	ClassIntegrity
	// ClassFatal failures halt the affected worker
	ClassFatal
	// ClassAborted means shutdown interrupted the work
	ClassAborted
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassEscalation:
		return "escalation"
	case ClassIntegrity:
		return "integrity"
	case ClassFatal:
		return "fatal"
	case ClassAborted:
		return "aborted"
	default:
		return "none"
	}
}

// Class returns the handling class for k
func (k ErrorKind) Class() ErrorClass {
	switch k {
	case KindNone:
		return ClassNone
	case KindNavigation, KindClassifierUnavailable, KindRateLimitTimeout, KindSubmitTimeout, KindDeadlineExceeded:
		return ClassTransient
	case KindTargetInvalid, KindFormNotFound, KindIncompleteMapping, KindAutomationFailure:
		return ClassPermanent
	case KindCaptchaBlocked:
		return ClassEscalation
	case KindAlreadyExists, KindInvalidTransition:
		return ClassIntegrity
	case KindAborted:
		return ClassAborted
	default:
		return ClassFatal
	}
}

// Error is a pipeline failure tagged with its kind
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that failed
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same kind, so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAlreadyExists         = &Error{Kind: KindAlreadyExists}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrClassifierUnavailable = &Error{Kind: KindClassifierUnavailable}
	ErrRateLimitTimeout      = &Error{Kind: KindRateLimitTimeout}
	ErrStorageUnavailable    = &Error{Kind: KindStorageUnavailable}
)

// KindOf extracts the kind of err. Context cancellation maps to aborted and
// anything untyped to automation_failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindDeadlineExceeded
	}
	return KindAutomationFailure
}

// StorageError wraps a backend failure as storage_unavailable
func StorageError(op string, err error) error {
	return NewError(KindStorageUnavailable, op, err)
}
