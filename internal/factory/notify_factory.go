package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/notify"
	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
)

// NotifyFactory creates escalation notifiers
type NotifyFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifyFactory creates a new notify factory
func NewNotifyFactory(cfg *config.Config, logger *zap.Logger) *NotifyFactory {
	return &NotifyFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier creates the notifier named by notify.type
func (f *NotifyFactory) CreateNotifier() (core.Notifier, error) {
	notifyCfg := f.cfg.GetNotify()

	switch notifyCfg.Type {
	case "log":
		return notify.NewLog(f.logger), nil
	case "smtp":
		return notify.NewSMTP(notifyCfg.SMTP, f.logger)
	default:
		return nil, fmt.Errorf("unsupported notify type: %s", notifyCfg.Type)
	}
}
