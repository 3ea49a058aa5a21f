package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ackTimeout bounds a source acknowledgement issued during shutdown
const ackTimeout = 10 * time.Second

// SchedulerConfig holds the poll loop and worker pool settings
type SchedulerConfig struct {
	Workers      int
	PollInterval time.Duration
	ResumeBatch  int
	MaxDeferrals int
}

// CycleReport summarises one poll cycle
type CycleReport struct {
	Resumed      int
	Polled       int
	SourceErrors int
	Decisions    map[Decision]int
}

// Scheduler feeds due records and fresh candidates to a bounded pool of
// engine workers
type Scheduler struct {
	engine *Engine
	source EmailSource
	store  FingerprintStore
	cfg    SchedulerConfig
	logger *zap.Logger

	mu        sync.Mutex
	deferrals map[string]int
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a new scheduler
func NewScheduler(engine *Engine, source EmailSource, store FingerprintStore, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxDeferrals < 1 {
		cfg.MaxDeferrals = 1
	}
	return &Scheduler{
		engine:    engine,
		source:    source,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		deferrals: make(map[string]int),
	}
}

// Process runs a single candidate through the engine without acking it
func (s *Scheduler) Process(ctx context.Context, c Candidate) Outcome {
	return s.engine.Process(ctx, c)
}

// RunOnce resumes due records, then drains one poll of the source
func (s *Scheduler) RunOnce(ctx context.Context) (CycleReport, error) {
	report := CycleReport{Decisions: make(map[Decision]int)}
	var reportMu sync.Mutex
	count := func(d Decision) {
		reportMu.Lock()
		report.Decisions[d]++
		reportMu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	due, err := s.store.DuePending(ctx, s.engine.now(), s.cfg.ResumeBatch)
	if err != nil {
		s.logger.Error("Failed to list due participation records", zap.Error(err))
	}
	for _, rec := range due {
		if ctx.Err() != nil {
			break
		}
		report.Resumed++
		g.Go(func() error {
			count(s.engine.Resume(ctx, rec).Decision)
			return nil
		})
	}

	seen := make(map[string]bool)
	for c, err := range s.source.Poll(ctx) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			s.logger.Warn("Email source error", zap.Error(err))
			report.SourceErrors++
			continue
		}
		report.Polled++
		seen[c.ID] = true
		g.Go(func() error {
			out := s.engine.Process(ctx, c)
			count(s.settle(ctx, c, out).Decision)
			return nil
		})
	}

	_ = g.Wait()
	s.forgetUnseen(seen)

	s.logger.Info("Poll cycle complete",
		zap.Int("resumed", report.Resumed),
		zap.Int("polled", report.Polled),
		zap.Int("source_errors", report.SourceErrors),
		zap.Any("decisions", report.Decisions))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// settle acks settled candidates and bounds how often one may be deferred
func (s *Scheduler) settle(ctx context.Context, c Candidate, out Outcome) Outcome {
	switch out.Decision {
	case DecisionAborted:
		return out
	case DecisionDeferred:
		s.mu.Lock()
		s.deferrals[c.ID]++
		n := s.deferrals[c.ID]
		s.mu.Unlock()
		if n < s.cfg.MaxDeferrals {
			s.logger.Info("Candidate deferred",
				zap.String("candidate_id", c.ID),
				zap.Int("deferrals", n),
				zap.String("kind", string(out.Kind)))
			return out
		}
		out = s.engine.GiveUp(ctx, out)
	}

	s.mu.Lock()
	delete(s.deferrals, c.ID)
	s.mu.Unlock()

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := s.source.Ack(actx, c.ID); err != nil {
		s.logger.Warn("Failed to acknowledge candidate",
			zap.String("candidate_id", c.ID),
			zap.Error(err))
	}
	return out
}

func (s *Scheduler) forgetUnseen(seen map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.deferrals {
		if !seen[id] {
			delete(s.deferrals, id)
		}
	}
}

// Run polls every PollInterval until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting scheduler",
		zap.Int("workers", s.cfg.Workers),
		zap.Duration("poll_interval", s.cfg.PollInterval))

	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Poll cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Poll cycle failed", zap.Error(err))
			}
		}
	}
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}
	if s.cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", s.cfg.PollInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		_ = s.Run(ctx)
	}()
	return nil
}

// Stop cancels in-flight work and waits for the workers to drain
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
