package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/source"
	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
)

// SourceFactory creates email sources based on configuration
type SourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSource creates the source named by source.type. The SMTP listener
// is started here and must be stopped by the caller.
func (f *SourceFactory) CreateSource() (core.EmailSource, error) {
	sourceCfg := f.cfg.GetSource()

	switch sourceCfg.Type {
	case "gmail":
		return source.NewGmail(context.Background(), sourceCfg.Gmail, f.logger)
	case "smtp":
		s := source.NewSMTP(sourceCfg.SMTP, f.logger)
		if err := s.Start(); err != nil {
			return nil, fmt.Errorf("failed to start SMTP intake: %w", err)
		}
		return s, nil
	case "dir":
		return source.NewDir(sourceCfg.Dir, f.logger)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceCfg.Type)
	}
}
