package core_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/store"
	"github.com/mikey/giveaway-engine/internal/core"
	"github.com/mikey/giveaway-engine/internal/ratelimit"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type classifierFunc func(text string) (*core.ClassificationResult, error)

func (f classifierFunc) Classify(ctx context.Context, text string) (*core.ClassificationResult, error) {
	return f(text)
}

func fixedScore(score, confidence float64) classifierFunc {
	return func(string) (*core.ClassificationResult, error) {
		return &core.ClassificationResult{Score: score, Confidence: confidence, ModelVersion: "test-model"}, nil
	}
}

type nopPage struct {
	closed *atomic.Int32
}

func (p nopPage) Open(context.Context, string) error { return nil }
func (p nopPage) LocateForm(context.Context, core.FormHint) (*core.FormShape, error) {
	return &core.FormShape{}, nil
}
func (p nopPage) SetField(context.Context, string, string) error     { return nil }
func (p nopPage) Submit(context.Context, core.FormHint) error        { return nil }
func (p nopPage) DetectCaptcha(context.Context) (bool, error)        { return false, nil }
func (p nopPage) DetectConfirmation(context.Context, []string) error { return nil }
func (p nopPage) Close() error                                       { p.closed.Add(1); return nil }

type fakeBrowser struct {
	err    error
	opened atomic.Int32
	closed atomic.Int32
}

func (b *fakeBrowser) NewPage(ctx context.Context) (core.Page, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.opened.Add(1)
	return nopPage{closed: &b.closed}, nil
}

// scriptedAutomator returns results in order, repeating the last one
type scriptedAutomator struct {
	mu      sync.Mutex
	results []core.AttemptResult
	tasks   []core.FormTask
	block   bool
	started chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
}

func (a *scriptedAutomator) Attempt(ctx context.Context, page core.Page, task core.FormTask) core.AttemptResult {
	a.mu.Lock()
	n := len(a.tasks)
	a.tasks = append(a.tasks, task)
	a.mu.Unlock()

	active := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		max := a.maxActive.Load()
		if active <= max || a.maxActive.CompareAndSwap(max, active) {
			break
		}
	}

	if a.started != nil {
		select {
		case a.started <- struct{}{}:
		default:
		}
	}
	if a.block {
		<-ctx.Done()
		return core.AttemptResult{Kind: core.KindAborted, Err: ctx.Err()}
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}

	if len(a.results) == 0 {
		return core.AttemptResult{Succeeded: true}
	}
	if n >= len(a.results) {
		n = len(a.results) - 1
	}
	return a.results[n]
}

func (a *scriptedAutomator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

func failWith(kind core.ErrorKind) core.AttemptResult {
	return core.AttemptResult{Kind: kind, Err: core.NewError(kind, "test", nil)}
}

type staticProfile struct {
	fields map[string]string
	err    error
}

func (p staticProfile) Fields(context.Context) (map[string]string, error) {
	return p.fields, p.err
}

type countingNotifier struct {
	mu    sync.Mutex
	sent []core.Escalation
}

func (n *countingNotifier) Escalate(ctx context.Context, e core.Escalation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, e)
	return nil
}

func (n *countingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type blockList []string

func (b blockList) IsBlocked(sender string) bool {
	d := core.SenderDomain(sender)
	for _, x := range b {
		if x == d {
			return true
		}
	}
	return false
}

// harness wires an engine over the memory store and real limiter
type harness struct {
	engine     *core.Engine
	store      *store.MemoryStore
	limiter    *ratelimit.Limiter
	browser    *fakeBrowser
	automator  *scriptedAutomator
	notifier   *countingNotifier
	clock      *clock
	classifier classifierFunc
}

type harnessOption func(*harness, *core.EngineDeps, *core.EngineConfig)

func withClassifier(c classifierFunc) harnessOption {
	return func(h *harness, d *core.EngineDeps, _ *core.EngineConfig) {
		h.classifier = c
	}
}

func withResults(results ...core.AttemptResult) harnessOption {
	return func(h *harness, _ *core.EngineDeps, _ *core.EngineConfig) {
		h.automator.results = results
	}
}

func withLimiter(l *ratelimit.Limiter) harnessOption {
	return func(h *harness, d *core.EngineDeps, _ *core.EngineConfig) {
		h.limiter = l
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		store:      store.NewMemoryStore(zap.NewNop()),
		limiter:    ratelimit.New(1000, time.Second, 4),
		browser:    &fakeBrowser{},
		automator:  &scriptedAutomator{},
		notifier:   &countingNotifier{},
		clock:      &clock{now: t0},
		classifier: fixedScore(0.97, 0.9),
	}
	cfg := core.EngineConfig{
		MaxAttempts:    3,
		RetryBase:      30 * time.Second,
		RetryMax:       30 * time.Minute,
		Lease:          5 * time.Minute,
		AcquireTimeout: 200 * time.Millisecond,
		TaskDeadline:   time.Minute,
	}
	deps := core.EngineDeps{
		Profile: staticProfile{fields: map[string]string{"email": "jane@example.com", "name": "Jane"}},
	}
	for _, opt := range opts {
		opt(h, &deps, &cfg)
	}

	deps.Store = h.store
	deps.Classifier = core.NewClassifierAdapter(h.classifier, zap.NewNop(), time.Second, 0.8, 0.6)
	deps.Limiter = h.limiter
	deps.Browser = h.browser
	deps.Automator = h.automator
	deps.Notifier = h.notifier
	deps.Audit = h.store

	h.engine = core.NewEngine(deps, cfg, zap.NewNop())
	h.engine.SetClock(h.clock.Now)
	return h
}

func (h *harness) assertNoLeakedTokens(t *testing.T) {
	t.Helper()
	stats := h.limiter.Stats()
	if stats.InFlight != 0 || stats.Acquired != stats.Released {
		t.Errorf("rate tokens leaked: %+v", stats)
	}
	if opened, closed := h.browser.opened.Load(), h.browser.closed.Load(); opened != closed {
		t.Errorf("pages leaked: opened %d closed %d", opened, closed)
	}
}

func giveaway(id string) core.Candidate {
	return core.Candidate{
		ID:         id,
		Source:     "test",
		Sender:     "Prize Team <prizes@brand.example>",
		Subject:    "Win a cargo bike this spring",
		Body:       "We are giving away three cargo bikes. Enter now at https://brand.example/giveaway?utm_source=mail\n\nUnsubscribe: https://brand.example/unsubscribe",
		ReceivedAt: t0,
	}
}

func distinctGiveaway(i int) core.Candidate {
	c := giveaway(fmt.Sprintf("cand-%d", i))
	c.Sender = fmt.Sprintf("prizes@brand%d.example", i)
	return c
}

// sliceSource is an in-memory email source
type sliceSource struct {
	mu    sync.Mutex
	items []core.Candidate
	errs  []error
	acked map[string]int
}

func (s *sliceSource) Poll(ctx context.Context) iter.Seq2[core.Candidate, error] {
	return func(yield func(core.Candidate, error) bool) {
		s.mu.Lock()
		items := append([]core.Candidate(nil), s.items...)
		errs := append([]error(nil), s.errs...)
		s.mu.Unlock()

		for _, err := range errs {
			if !yield(core.Candidate{}, err) {
				return
			}
		}
		for _, c := range items {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s *sliceSource) Ack(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acked == nil {
		s.acked = make(map[string]int)
	}
	s.acked[id]++
	// acked mail is not delivered again
	kept := s.items[:0]
	for _, c := range s.items {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.items = kept
	return nil
}

func (s *sliceSource) Acked(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked[id]
}

var errBackend = errors.New("backend down")
