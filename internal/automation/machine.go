// Package automation drives a single participation attempt against a web
// form. A Machine owns exactly one FormTask and one Page for its lifetime;
// it never retries, so a terminal state is final.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

// State is a node of the attempt state machine
type State string

const (
	StateStart          State = "start"
	StateNavigating     State = "navigating"
	StateFormLocated    State = "form_located"
	StateFilling        State = "filling"
	StateSubmitting     State = "submitting"
	StateSucceeded      State = "succeeded"
	StateCaptchaBlocked State = "captcha_blocked"
	StateFailed         State = "failed"
)

// Terminal reports whether s ends the machine
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateCaptchaBlocked || s == StateFailed
}

// Config bounds each waiting phase; the task deadline bounds the whole run
type Config struct {
	NavigationTimeout   time.Duration
	FormTimeout         time.Duration
	ConfirmationTimeout time.Duration
	CaptchaProbeTimeout time.Duration
}

// Transition is one recorded state change
type Transition struct {
	From State
	To   State
	At   time.Time
	Kind core.ErrorKind
}

// Result is the outcome of one run
type Result struct {
	Final       State
	Kind        core.ErrorKind
	Err         error
	Transitions []Transition
	Filled      []string
	Missing     []string
}

// Succeeded reports whether the entry was confirmed
func (r Result) Succeeded() bool {
	return r.Final == StateSucceeded
}

var tracer = otel.Tracer("github.com/mikey/giveaway-engine/internal/automation")

// Machine executes one FormTask
type Machine struct {
	cfg         Config
	logger      *zap.Logger
	state       State
	transitions []Transition
	span        trace.Span
}

// New creates a machine in the start state
func New(cfg Config, logger *zap.Logger) *Machine {
	if cfg.CaptchaProbeTimeout <= 0 {
		cfg.CaptchaProbeTimeout = 5 * time.Second
	}
	return &Machine{
		cfg:    cfg,
		logger: logger,
		state:  StateStart,
	}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Run drives the page through navigation, form location, filling and
// submission. Cancelling ctx aborts the run with KindAborted.
func (m *Machine) Run(ctx context.Context, page core.Page, task core.FormTask) Result {
	if m.state != StateStart {
		return Result{
			Final: m.state,
			Kind:  core.KindAutomationFailure,
			Err:   fmt.Errorf("machine already ran"),
		}
	}

	outer := ctx
	ctx, m.span = tracer.Start(ctx, "automation.run", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("fingerprint", task.Fingerprint.Short()),
	))
	defer m.span.End()

	if !task.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, task.Deadline)
		defer cancel()
	}

	log := m.logger.With(zap.String("task_id", task.ID), zap.String("fingerprint", task.Fingerprint.Short()))

	// Start -> Navigating
	m.enter(StateNavigating, core.KindNone)
	if err := m.phase(ctx, m.cfg.NavigationTimeout, func(pctx context.Context) error {
		return page.Open(pctx, task.TargetURL)
	}); err != nil {
		return m.failUnlessBlocked(outer, page, log, err, core.KindNavigation, nil)
	}
	if r, blocked := m.captcha(outer, ctx, page, log); blocked {
		return r
	}

	// Navigating -> FormLocated
	var shape *core.FormShape
	if err := m.phase(ctx, m.cfg.FormTimeout, func(pctx context.Context) error {
		var err error
		shape, err = page.LocateForm(pctx, task.Hint)
		return err
	}); err != nil {
		return m.failUnlessBlocked(outer, page, log, err, core.KindFormNotFound, nil)
	}
	if shape == nil {
		return m.failUnlessBlocked(outer, page, log, core.NewError(core.KindFormNotFound, "locate form", nil), core.KindFormNotFound, nil)
	}
	m.enter(StateFormLocated, core.KindNone)
	if r, blocked := m.captcha(outer, ctx, page, log); blocked {
		return r
	}

	// FormLocated -> Filling
	m.enter(StateFilling, core.KindNone)
	plan, missing := planFields(shape, task.Fields, task.Aliases)
	if len(missing) > 0 {
		err := core.NewError(core.KindIncompleteMapping, "fill form", fmt.Errorf("no value for required fields %v", missing))
		return m.failUnlessBlocked(outer, page, log, err, core.KindIncompleteMapping, &Result{Missing: missing})
	}
	filled := make([]string, 0, len(plan))
	for _, a := range plan {
		if err := page.SetField(ctx, a.field, a.value); err != nil {
			return m.failUnlessBlocked(outer, page, log, err, core.KindDeadlineExceeded, &Result{Filled: filled})
		}
		filled = append(filled, a.field)
	}
	log.Debug("Form filled", zap.Strings("fields", filled))
	if r, blocked := m.captcha(outer, ctx, page, log); blocked {
		r.Filled = filled
		return r
	}

	// Filling -> Submitting
	m.enter(StateSubmitting, core.KindNone)
	if err := page.Submit(ctx, task.Hint); err != nil {
		return m.failUnlessBlocked(outer, page, log, err, core.KindSubmitTimeout, &Result{Filled: filled})
	}
	if r, blocked := m.captcha(outer, ctx, page, log); blocked {
		r.Filled = filled
		return r
	}

	// Submitting -> Succeeded
	if err := m.phase(ctx, m.cfg.ConfirmationTimeout, func(pctx context.Context) error {
		return page.DetectConfirmation(pctx, task.ConfirmationPatterns)
	}); err != nil {
		// challenges are often injected after the submit click
		return m.failUnlessBlocked(outer, page, log, err, core.KindSubmitTimeout, &Result{Filled: filled})
	}

	m.enter(StateSucceeded, core.KindNone)
	m.span.SetStatus(codes.Ok, "")
	return m.result(core.KindNone, nil, &Result{Filled: filled})
}

// phase runs fn under a per-phase timeout nested in ctx
func (m *Machine) phase(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(pctx)
}

// captcha probes for a challenge; a detection ends the run
func (m *Machine) captcha(outer, ctx context.Context, page core.Page, log *zap.Logger) (Result, bool) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.CaptchaProbeTimeout)
	defer cancel()

	found, err := page.DetectCaptcha(pctx)
	if err != nil {
		if outer.Err() == nil {
			m.span.RecordError(err, trace.WithAttributes(attribute.String("probe", "captcha")))
			log.Warn("CAPTCHA probe failed", zap.String("state", string(m.state)), zap.Error(err))
		}
		return Result{}, false
	}
	if !found {
		return Result{}, false
	}

	log.Info("CAPTCHA detected", zap.String("state", string(m.state)))
	m.enter(StateCaptchaBlocked, core.KindCaptchaBlocked)
	m.span.SetStatus(codes.Error, string(core.KindCaptchaBlocked))
	return m.result(core.KindCaptchaBlocked, core.NewError(core.KindCaptchaBlocked, string(m.transitions[len(m.transitions)-1].From), nil), nil), true
}

// failUnlessBlocked ends a failed phase. A challenge on the page takes
// precedence over the phase error.
func (m *Machine) failUnlessBlocked(outer context.Context, page core.Page, log *zap.Logger, err error, deadlineKind core.ErrorKind, partial *Result) Result {
	if outer.Err() == nil {
		if r, blocked := m.captcha(outer, outer, page, log); blocked {
			if partial != nil {
				r.Filled = partial.Filled
				r.Missing = partial.Missing
			}
			return r
		}
	}
	return m.fail(outer, err, deadlineKind, partial)
}

// fail moves to Failed with the kind derived from err. A deadline hit while
// waiting maps to deadlineKind; shutdown of outer maps to aborted.
func (m *Machine) fail(outer context.Context, err error, deadlineKind core.ErrorKind, partial *Result) Result {
	kind := classify(outer, err, deadlineKind)
	m.enter(StateFailed, kind)
	m.span.RecordError(err)
	m.span.SetStatus(codes.Error, string(kind))
	m.logger.Debug("Attempt failed",
		zap.String("kind", string(kind)),
		zap.String("after", string(m.transitions[len(m.transitions)-1].From)),
		zap.Error(err))
	return m.result(kind, err, partial)
}

func classify(outer context.Context, err error, deadlineKind core.ErrorKind) core.ErrorKind {
	if errors.Is(outer.Err(), context.Canceled) {
		return core.KindAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return deadlineKind
	}
	var typed *core.Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, context.Canceled) {
		return core.KindAborted
	}
	return core.KindAutomationFailure
}

func (m *Machine) enter(next State, kind core.ErrorKind) {
	t := Transition{From: m.state, To: next, At: time.Now(), Kind: kind}
	m.transitions = append(m.transitions, t)
	m.state = next
	if m.span != nil {
		m.span.AddEvent("state", trace.WithAttributes(
			attribute.String("from", string(t.From)),
			attribute.String("to", string(t.To)),
		))
	}
}

func (m *Machine) result(kind core.ErrorKind, err error, partial *Result) Result {
	r := Result{
		Final:       m.state,
		Kind:        kind,
		Err:         err,
		Transitions: append([]Transition(nil), m.transitions...),
	}
	if partial != nil {
		r.Filled = partial.Filled
		r.Missing = partial.Missing
	}
	return r
}
