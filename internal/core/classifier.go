package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ClassifierAdapter bounds and normalises calls to the scoring backend
type ClassifierAdapter struct {
	backend         Classifier
	logger          *zap.Logger
	timeout         time.Duration
	threshold       float64
	confidenceFloor float64
}

// NewClassifierAdapter creates a new classifier adapter
func NewClassifierAdapter(backend Classifier, logger *zap.Logger, timeout time.Duration, threshold, confidenceFloor float64) *ClassifierAdapter {
	return &ClassifierAdapter{
		backend:         backend,
		logger:          logger,
		timeout:         timeout,
		threshold:       threshold,
		confidenceFloor: confidenceFloor,
	}
}

// Score classifies a candidate. Any backend failure, including a timeout,
// is reported as ErrClassifierUnavailable and never as a verdict.
func (a *ClassifierAdapter) Score(ctx context.Context, c Candidate) (*ClassificationResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := a.backend.Classify(ctx, c.Text())
	if err != nil {
		return nil, NewError(KindClassifierUnavailable, "classify", err)
	}
	if result == nil {
		return nil, NewError(KindClassifierUnavailable, "classify", nil)
	}

	out := *result
	out.Score = clamp01(out.Score)
	out.Confidence = clamp01(out.Confidence)
	if out.AnalyzedAt.IsZero() {
		out.AnalyzedAt = time.Now()
	}

	a.logger.Debug("Candidate classified",
		zap.String("candidate_id", c.ID),
		zap.Float64("score", out.Score),
		zap.Float64("confidence", out.Confidence),
		zap.String("model", out.ModelVersion),
		zap.Duration("took", time.Since(start)))

	return &out, nil
}

// Verdict maps a classification to the engine's decision.
// Low confidence is treated exactly like a low score.
func (a *ClassifierAdapter) Verdict(r *ClassificationResult) Decision {
	if r.Confidence < a.confidenceFloor {
		return DecisionLowConfidence
	}
	if r.Score < a.threshold {
		return DecisionBelowThreshold
	}
	return DecisionParticipate
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
