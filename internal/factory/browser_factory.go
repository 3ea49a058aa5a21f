package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/browser"
	"github.com/mikey/giveaway-engine/internal/config"
)

// BrowserFactory creates the page automation capability
type BrowserFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewBrowserFactory creates a new browser factory
func NewBrowserFactory(cfg *config.Config, logger *zap.Logger) *BrowserFactory {
	return &BrowserFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateBrowser starts Chrome
func (f *BrowserFactory) CreateBrowser() (*browser.Chrome, error) {
	return browser.NewChrome(f.cfg.GetBrowser(), f.logger)
}
