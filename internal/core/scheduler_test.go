package core_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

func newScheduler(h *harness, src *sliceSource, cfg core.SchedulerConfig) *core.Scheduler {
	return core.NewScheduler(h.engine, src, h.store, cfg, zap.NewNop())
}

func TestScheduler_RunOnceAcksSettledCandidates(t *testing.T) {
	h := newHarness(t, withClassifier(func(text string) (*core.ClassificationResult, error) {
		if strings.Contains(text, "crypto") {
			return &core.ClassificationResult{Score: 0.1, Confidence: 0.9}, nil
		}
		return &core.ClassificationResult{Score: 0.95, Confidence: 0.9}, nil
	}))
	scam := distinctGiveaway(2)
	scam.Subject = "Free crypto, act now"
	src := &sliceSource{items: []core.Candidate{distinctGiveaway(1), scam, distinctGiveaway(3)}}

	report, err := newScheduler(h, src, core.SchedulerConfig{Workers: 2, MaxDeferrals: 3}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if report.Polled != 3 {
		t.Errorf("polled = %d, want 3", report.Polled)
	}
	if report.Decisions[core.DecisionSucceeded] != 2 || report.Decisions[core.DecisionBelowThreshold] != 1 {
		t.Errorf("decisions = %v", report.Decisions)
	}
	for _, id := range []string{"cand-1", "cand-2", "cand-3"} {
		if src.Acked(id) != 1 {
			t.Errorf("%s acked %d times, want 1", id, src.Acked(id))
		}
	}
	h.assertNoLeakedTokens(t)
}

func TestScheduler_SourceErrorsDoNotStopCycle(t *testing.T) {
	h := newHarness(t)
	src := &sliceSource{
		items: []core.Candidate{distinctGiveaway(1)},
		errs:  []error{errBackend},
	}

	report, err := newScheduler(h, src, core.SchedulerConfig{Workers: 1}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.SourceErrors != 1 || report.Polled != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestScheduler_DeferredCandidateIsBounded(t *testing.T) {
	h := newHarness(t, withClassifier(func(string) (*core.ClassificationResult, error) {
		return nil, errBackend
	}))
	src := &sliceSource{items: []core.Candidate{distinctGiveaway(1)}}
	s := newScheduler(h, src, core.SchedulerConfig{Workers: 1, MaxDeferrals: 2})
	ctx := context.Background()

	report, _ := s.RunOnce(ctx)
	if report.Decisions[core.DecisionDeferred] != 1 || src.Acked("cand-1") != 0 {
		t.Fatalf("first cycle: decisions %v, acked %d", report.Decisions, src.Acked("cand-1"))
	}

	report, _ = s.RunOnce(ctx)
	if report.Decisions[core.DecisionFailed] != 1 {
		t.Errorf("second cycle decisions = %v, want one failed", report.Decisions)
	}
	if src.Acked("cand-1") != 1 {
		t.Errorf("candidate acked %d times, want 1", src.Acked("cand-1"))
	}

	report, _ = s.RunOnce(ctx)
	if report.Polled != 0 {
		t.Errorf("given-up candidate delivered again")
	}
}

func TestScheduler_ResumesDueRecords(t *testing.T) {
	h := newHarness(t, withResults(failWith(core.KindNavigation), core.AttemptResult{Succeeded: true}))
	src := &sliceSource{items: []core.Candidate{distinctGiveaway(1)}}
	s := newScheduler(h, src, core.SchedulerConfig{Workers: 2, ResumeBatch: 10, MaxDeferrals: 3})
	ctx := context.Background()

	report, _ := s.RunOnce(ctx)
	if report.Decisions[core.DecisionRequeued] != 1 {
		t.Fatalf("first cycle decisions = %v", report.Decisions)
	}
	if src.Acked("cand-1") != 1 {
		t.Errorf("requeued candidate must be acked; the record carries the retry")
	}

	h.clock.Set(t0.Add(time.Minute))
	report, _ = s.RunOnce(ctx)
	if report.Resumed != 1 || report.Decisions[core.DecisionSucceeded] != 1 {
		t.Errorf("second cycle = %+v", report)
	}
	stats, _ := h.store.Stats(ctx)
	if stats[core.StatusSucceeded] != 1 || stats[core.StatusPending] != 0 {
		t.Errorf("stats = %v", stats)
	}
}

func TestScheduler_WorkerPoolIsBounded(t *testing.T) {
	h := newHarness(t)
	h.automator.delay = 20 * time.Millisecond
	var items []core.Candidate
	for i := 0; i < 8; i++ {
		items = append(items, distinctGiveaway(i))
	}
	src := &sliceSource{items: items}

	report, err := newScheduler(h, src, core.SchedulerConfig{Workers: 2}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Decisions[core.DecisionSucceeded] != 8 {
		t.Errorf("decisions = %v", report.Decisions)
	}
	if got := h.automator.maxActive.Load(); got > 2 {
		t.Errorf("%d attempts ran concurrently, want at most 2", got)
	}
}

func TestScheduler_StopAbortsInFlightWork(t *testing.T) {
	h := newHarness(t)
	h.automator.block = true
	h.automator.started = make(chan struct{}, 1)
	src := &sliceSource{items: []core.Candidate{distinctGiveaway(1)}}
	s := newScheduler(h, src, core.SchedulerConfig{Workers: 1, PollInterval: time.Hour})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-h.automator.started:
	case <-time.After(2 * time.Second):
		t.Fatal("attempt never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if src.Acked("cand-1") != 0 {
		t.Error("aborted candidate must not be acked")
	}
	stats, _ := h.store.Stats(context.Background())
	if stats[core.StatusPending] != 1 {
		t.Errorf("stats = %v, want the record left pending", stats)
	}
	h.assertNoLeakedTokens(t)
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	h := newHarness(t)
	s := newScheduler(h, &sliceSource{}, core.SchedulerConfig{Workers: 1, PollInterval: time.Hour})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
}
