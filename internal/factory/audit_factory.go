package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/audit"
	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
)

// AuditFactory creates the audit sink
type AuditFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAuditFactory creates a new audit factory
func NewAuditFactory(cfg *config.Config, logger *zap.Logger) *AuditFactory {
	return &AuditFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAuditSink creates the sink named by audit.type behind a buffered
// writer. "store" reuses the participation store's audit table.
func (f *AuditFactory) CreateAuditSink(st Store) (*audit.Async, error) {
	auditCfg := f.cfg.GetAudit()

	var sink core.AuditSink
	switch auditCfg.Type {
	case "file":
		file, err := audit.NewFile(auditCfg.Path)
		if err != nil {
			return nil, err
		}
		sink = file
	case "store":
		sink = st
	case "none":
		sink = audit.Discard{}
	default:
		return nil, fmt.Errorf("unsupported audit type: %s", auditCfg.Type)
	}
	return audit.NewAsync(sink, auditCfg.Buffer, f.logger), nil
}
