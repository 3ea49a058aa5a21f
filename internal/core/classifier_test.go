package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubClassifier struct {
	result *ClassificationResult
	err    error
	wait   bool
	text   string
}

func (s *stubClassifier) Classify(ctx context.Context, text string) (*ClassificationResult, error) {
	s.text = text
	if s.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.result, s.err
}

func TestClassifierAdapter_Score(t *testing.T) {
	stub := &stubClassifier{result: &ClassificationResult{Score: 1.4, Confidence: -0.2, ModelVersion: "m1"}}
	a := NewClassifierAdapter(stub, zap.NewNop(), time.Second, 0.8, 0.6)
	c := Candidate{ID: "c1", Subject: "Win", Body: "a bike"}

	got, err := a.Score(context.Background(), c)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if stub.text != "Win\na bike" {
		t.Errorf("classifier saw %q", stub.text)
	}
	if got.Score != 1 || got.Confidence != 0 {
		t.Errorf("scores not clamped: %+v", got)
	}
	if got.AnalyzedAt.IsZero() {
		t.Error("AnalyzedAt not set")
	}
	if stub.result.Score != 1.4 {
		t.Error("backend result was mutated")
	}
}

func TestClassifierAdapter_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		stub *stubClassifier
	}{
		{"backend error", &stubClassifier{err: errors.New("503")}},
		{"nil result", &stubClassifier{}},
		{"timeout", &stubClassifier{wait: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewClassifierAdapter(tt.stub, zap.NewNop(), 20*time.Millisecond, 0.8, 0.6)
			_, err := a.Score(context.Background(), Candidate{ID: "c1"})
			if !errors.Is(err, ErrClassifierUnavailable) {
				t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
			}
			if KindOf(err).Class() != ClassTransient {
				t.Errorf("classifier outage should be transient, got %s", KindOf(err).Class())
			}
		})
	}
}

func TestClassifierAdapter_Verdict(t *testing.T) {
	a := NewClassifierAdapter(nil, zap.NewNop(), 0, 0.8, 0.6)
	tests := []struct {
		score, confidence float64
		want              Decision
	}{
		{0.97, 0.9, DecisionParticipate},
		{0.8, 0.6, DecisionParticipate},
		{0.79, 0.9, DecisionBelowThreshold},
		{0.99, 0.59, DecisionLowConfidence},
		{0.1, 0.1, DecisionLowConfidence},
	}
	for _, tt := range tests {
		got := a.Verdict(&ClassificationResult{Score: tt.score, Confidence: tt.confidence})
		if got != tt.want {
			t.Errorf("Verdict(%v, %v) = %s, want %s", tt.score, tt.confidence, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{NewError(KindFormNotFound, "locate", nil), KindFormNotFound},
		{context.Canceled, KindAborted},
		{context.DeadlineExceeded, KindDeadlineExceeded},
		{errors.New("boom"), KindAutomationFailure},
		{StorageError("lookup", errors.New("disk")), KindStorageUnavailable},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if !errors.Is(NewError(KindAlreadyExists, "create", nil), ErrAlreadyExists) {
		t.Error("errors.Is should match by kind")
	}
	if KindStorageUnavailable.Class() != ClassFatal {
		t.Error("storage outage should be fatal")
	}
}
