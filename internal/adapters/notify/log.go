package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

// Log reports escalations to the structured log only
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log-only notifier
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Escalate implements core.Notifier
func (l *Log) Escalate(_ context.Context, e core.Escalation) error {
	l.logger.Warn("Human action required",
		zap.String("fingerprint", e.Fingerprint.Short()),
		zap.String("candidate_id", e.CandidateID),
		zap.String("target_url", e.TargetURL),
		zap.String("reason", string(e.Reason)),
		zap.Int("attempts", e.Attempts),
		zap.Time("at", e.At))
	return nil
}
