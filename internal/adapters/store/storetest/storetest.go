// Package storetest is a conformance suite every core.FingerprintStore
// backend has to pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mikey/giveaway-engine/internal/core"
)

// Factory returns a fresh, empty store for one subtest
type Factory func(t *testing.T) core.FingerprintStore

// base is whole seconds so every backend round-trips it exactly
var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite against stores produced by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("LookupMissing", func(t *testing.T) { testLookupMissing(t, newStore(t)) })
	t.Run("CreateThenLookup", func(t *testing.T) { testCreateThenLookup(t, newStore(t)) })
	t.Run("SecondCreateAlreadyExists", func(t *testing.T) { testSecondCreate(t, newStore(t)) })
	t.Run("TransitionCompareAndSet", func(t *testing.T) { testTransitionCAS(t, newStore(t)) })
	t.Run("TerminalIsFinal", func(t *testing.T) { testTerminalIsFinal(t, newStore(t)) })
	t.Run("TransitionMissing", func(t *testing.T) { testTransitionMissing(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("ConcurrentTransition", func(t *testing.T) { testConcurrentTransition(t, newStore(t)) })
	t.Run("TransitionReturnsOwnWrite", func(t *testing.T) { testTransitionReturnsOwnWrite(t, newStore(t)) })
	t.Run("DuePending", func(t *testing.T) { testDuePending(t, newStore(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore(t)) })
}

func fp(n int) core.Fingerprint {
	return core.Fingerprint(fmt.Sprintf("%064x", n))
}

func create(t *testing.T, s core.FingerprintStore, f core.Fingerprint, next time.Time) *core.ParticipationRecord {
	t.Helper()
	rec, err := s.CreatePending(context.Background(), f, core.CreateParams{
		CandidateID:   "cand-" + string(f[len(f)-4:]),
		TargetURL:     "https://example.com/enter",
		NextAttemptAt: next,
	})
	if err != nil {
		t.Fatalf("CreatePending(%s): %v", f.Short(), err)
	}
	return rec
}

func testLookupMissing(t *testing.T, s core.FingerprintStore) {
	_, err := s.Lookup(context.Background(), fp(1))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testCreateThenLookup(t *testing.T, s core.FingerprintStore) {
	created := create(t, s, fp(1), base)
	if created.Status != core.StatusPending || created.Attempts != 0 {
		t.Errorf("new record = %s/%d attempts, want pending/0", created.Status, created.Attempts)
	}

	got, err := s.Lookup(context.Background(), fp(1))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	want := core.ParticipationRecord{
		Fingerprint:   fp(1),
		Status:        core.StatusPending,
		CandidateID:   created.CandidateID,
		TargetURL:     "https://example.com/enter",
		NextAttemptAt: base,
		Version:       created.Version,
	}
	ignore := cmp.FilterPath(func(p cmp.Path) bool {
		name := p.Last().String()
		return name == ".CreatedAt" || name == ".UpdatedAt"
	}, cmp.Ignore())
	if diff := cmp.Diff(want, *got, ignore); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func testSecondCreate(t *testing.T, s core.FingerprintStore) {
	create(t, s, fp(1), base)
	_, err := s.CreatePending(context.Background(), fp(1), core.CreateParams{CandidateID: "other"})
	if !errors.Is(err, core.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.Lookup(context.Background(), fp(1))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.CandidateID == "other" {
		t.Error("second create overwrote the record")
	}
}

func testTransitionCAS(t *testing.T, s core.FingerprintStore) {
	ctx := context.Background()
	rec := create(t, s, fp(1), base)

	claimed, err := s.Transition(ctx, fp(1), core.ExpectOf(rec), core.Change{
		Status:        core.StatusPending,
		Attempts:      1,
		LastAttemptAt: base,
		NextAttemptAt: base.Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Version <= rec.Version {
		t.Errorf("version did not advance: %d -> %d", rec.Version, claimed.Version)
	}
	if claimed.Attempts != 1 || !claimed.NextAttemptAt.Equal(base.Add(5*time.Minute)) {
		t.Errorf("claim not applied: %+v", claimed)
	}

	// the original expectation is now stale
	_, err = s.Transition(ctx, fp(1), core.ExpectOf(rec), core.Change{Status: core.StatusSucceeded, Attempts: 1})
	if !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("stale version: expected ErrInvalidTransition, got %v", err)
	}

	done, err := s.Transition(ctx, fp(1), core.ExpectOf(claimed), core.Change{
		Status:    core.StatusFailed,
		Attempts:  1,
		LastError: core.KindFormNotFound,
	})
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if done.Status != core.StatusFailed || done.LastError != core.KindFormNotFound {
		t.Errorf("got %s/%s, want failed/form_not_found", done.Status, done.LastError)
	}
}

func testTerminalIsFinal(t *testing.T, s core.FingerprintStore) {
	ctx := context.Background()
	rec := create(t, s, fp(1), base)
	done, err := s.Transition(ctx, fp(1), core.ExpectOf(rec), core.Change{Status: core.StatusSucceeded, Attempts: 1})
	if err != nil {
		t.Fatalf("succeed: %v", err)
	}

	for _, next := range []core.Status{core.StatusPending, core.StatusFailed, core.StatusSucceeded, core.StatusRequiresHuman} {
		_, err := s.Transition(ctx, fp(1), core.ExpectOf(done), core.Change{Status: next, Attempts: 2})
		if !errors.Is(err, core.ErrInvalidTransition) {
			t.Errorf("succeeded -> %s: expected ErrInvalidTransition, got %v", next, err)
		}
	}

	got, err := s.Lookup(ctx, fp(1))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Status != core.StatusSucceeded || got.Attempts != 1 {
		t.Errorf("terminal record changed: %s/%d", got.Status, got.Attempts)
	}
}

func testTransitionMissing(t *testing.T, s core.FingerprintStore) {
	_, err := s.Transition(context.Background(), fp(9),
		core.Expect{Status: core.StatusPending, Version: 1},
		core.Change{Status: core.StatusFailed})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testConcurrentCreate(t *testing.T, s core.FingerprintStore) {
	const racers = 16
	var wins, lost atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreatePending(context.Background(), fp(1), core.CreateParams{CandidateID: fmt.Sprint(i)})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, core.ErrAlreadyExists):
				lost.Add(1)
			default:
				t.Errorf("racer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 || lost.Load() != racers-1 {
		t.Fatalf("wins=%d lost=%d, want 1/%d", wins.Load(), lost.Load(), racers-1)
	}
}

func testConcurrentTransition(t *testing.T, s core.FingerprintStore) {
	rec := create(t, s, fp(1), base)

	const racers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(context.Background(), fp(1), core.ExpectOf(rec), core.Change{
				Status:   core.StatusPending,
				Attempts: 1,
			})
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, core.ErrInvalidTransition):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("%d claims won the same version, want 1", wins.Load())
	}
}

func testTransitionReturnsOwnWrite(t *testing.T, s core.FingerprintStore) {
	ctx := context.Background()
	create(t, s, fp(1), base)

	const workers, rounds = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				cur, err := s.Lookup(ctx, fp(1))
				if err != nil {
					t.Errorf("Lookup: %v", err)
					return
				}
				change := core.Change{
					Status:        core.StatusPending,
					Attempts:      cur.Attempts + 1,
					NextAttemptAt: base.Add(time.Duration(cur.Attempts+1) * time.Second),
				}
				got, err := s.Transition(ctx, fp(1), core.ExpectOf(cur), change)
				if errors.Is(err, core.ErrInvalidTransition) {
					continue
				}
				if err != nil {
					t.Errorf("Transition: %v", err)
					return
				}
				if got.Version != cur.Version+1 || got.Attempts != change.Attempts || !got.NextAttemptAt.Equal(change.NextAttemptAt) {
					t.Errorf("got version %d attempts %d, want the write of version %d attempts %d",
						got.Version, got.Attempts, cur.Version+1, change.Attempts)
				}
			}
		}()
	}
	wg.Wait()

	final, err := s.Lookup(ctx, fp(1))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if final.Version != int64(final.Attempts)+1 {
		t.Errorf("version %d does not match %d applied transitions", final.Version, final.Attempts)
	}
}

func testDuePending(t *testing.T, s core.FingerprintStore) {
	ctx := context.Background()
	create(t, s, fp(1), base.Add(-time.Minute))
	create(t, s, fp(2), base.Add(-time.Hour))
	create(t, s, fp(3), base.Add(time.Hour))
	done := create(t, s, fp(4), base.Add(-2*time.Hour))
	if _, err := s.Transition(ctx, fp(4), core.ExpectOf(done), core.Change{Status: core.StatusFailed}); err != nil {
		t.Fatalf("fail record: %v", err)
	}

	due, err := s.DuePending(ctx, base, 10)
	if err != nil {
		t.Fatalf("DuePending: %v", err)
	}
	var got []core.Fingerprint
	for _, r := range due {
		got = append(got, r.Fingerprint)
	}
	if diff := cmp.Diff([]core.Fingerprint{fp(2), fp(1)}, got); diff != "" {
		t.Errorf("due mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.DuePending(ctx, base, 1)
	if err != nil {
		t.Fatalf("DuePending: %v", err)
	}
	if len(limited) != 1 || limited[0].Fingerprint != fp(2) {
		t.Errorf("limit 1 returned %d records", len(limited))
	}
}

func testStats(t *testing.T, s core.FingerprintStore) {
	ctx := context.Background()
	create(t, s, fp(1), base)
	create(t, s, fp(2), base)
	rec := create(t, s, fp(3), base)
	if _, err := s.Transition(ctx, fp(3), core.ExpectOf(rec), core.Change{Status: core.StatusRequiresHuman, Attempts: 1}); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := map[core.Status]int{core.StatusPending: 2, core.StatusRequiresHuman: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}
