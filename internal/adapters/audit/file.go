package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikey/giveaway-engine/internal/core"
)

// File appends audit entries as JSON lines
type File struct {
	logger *zap.Logger
}

// NewFile opens path for appending. "stdout" and "stderr" are accepted.
func NewFile(path string) (*File, error) {
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Encoding:         "json",
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "logged_at",
			MessageKey:     "event",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &File{logger: logger}, nil
}

// Write implements core.AuditSink
func (f *File) Write(_ context.Context, e core.AuditEntry) error {
	fields := []zap.Field{
		zap.String("id", e.ID),
		zap.String("candidate_id", e.CandidateID),
		zap.String("fingerprint", e.Fingerprint.String()),
		zap.String("decision", string(e.Decision)),
		zap.Int("attempts", e.Attempts),
		zap.Time("at", e.At),
	}
	if e.Status != "" {
		fields = append(fields, zap.String("status", string(e.Status)))
	}
	if e.ErrorKind != core.KindNone {
		fields = append(fields, zap.String("error_kind", string(e.ErrorKind)))
	}
	if c := e.Classification; c != nil {
		fields = append(fields,
			zap.Float64("score", c.Score),
			zap.Float64("confidence", c.Confidence),
			zap.String("model_version", c.ModelVersion))
	}
	f.logger.Info("audit", fields...)
	return nil
}

// Close flushes the file
func (f *File) Close() error {
	_ = f.logger.Sync()
	return nil
}

// Discard drops every entry
type Discard struct{}

// Write implements core.AuditSink
func (Discard) Write(context.Context, core.AuditEntry) error {
	return nil
}
