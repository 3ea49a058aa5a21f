package automation

import (
	"context"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

// Runner builds a fresh Machine for every attempt
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

// NewRunner creates a new automation runner
func NewRunner(cfg Config, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

// Attempt implements core.Automator
func (r *Runner) Attempt(ctx context.Context, page core.Page, task core.FormTask) core.AttemptResult {
	res := New(r.cfg, r.logger).Run(ctx, page, task)
	return core.AttemptResult{
		Succeeded: res.Succeeded(),
		Kind:      res.Kind,
		Err:       res.Err,
		Filled:    res.Filled,
		Missing:   res.Missing,
	}
}
