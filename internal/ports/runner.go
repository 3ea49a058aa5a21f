package ports

import (
	"context"

	"github.com/mikey/giveaway-engine/internal/core"
)

// Runner drives candidates through the engine
type Runner interface {
	// Process runs one candidate end to end without acknowledging it
	Process(ctx context.Context, candidate core.Candidate) core.Outcome

	// RunOnce executes a single poll cycle
	RunOnce(ctx context.Context) (core.CycleReport, error)

	// Start starts the scheduled poll loop
	Start() error

	// Stop stops the loop and waits for in-flight work to abort
	Stop() error
}

var _ Runner = (*core.Scheduler)(nil)
