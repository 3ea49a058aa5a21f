package factory

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/httpscore"
	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
	"github.com/mikey/giveaway-engine/internal/utils"
)

// ClassifierFactory creates legitimacy classifiers
type ClassifierFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier creates the backend named by classifier.provider
func (f *ClassifierFactory) CreateClassifier() (core.Classifier, error) {
	provider := f.cfg.GetClassifier().Provider

	switch provider {
	case "bedrock":
		return NewBedrockFactory(f.cfg, f.logger, f.textProcessor).CreateClassifier()
	case "gemini":
		return NewGeminiFactory(f.cfg, f.logger, f.textProcessor).CreateClassifier()
	case "openai":
		return NewOpenAIFactory(f.cfg, f.logger, f.textProcessor).CreateClassifier()
	case "http":
		scoreCfg := f.cfg.GetHTTPScore()
		if scoreCfg.URL == "" {
			return nil, fmt.Errorf("httpscore.url is required")
		}
		return httpscore.NewClient(http.DefaultClient, scoreCfg.URL, scoreCfg.MaxBodySize, f.logger, f.textProcessor), nil
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", provider)
	}
}

// CreateAdapter wraps a backend with the engine's timeout and thresholds
func (f *ClassifierFactory) CreateAdapter(backend core.Classifier) *core.ClassifierAdapter {
	classifierCfg := f.cfg.GetClassifier()
	engineCfg := f.cfg.GetEngine()
	return core.NewClassifierAdapter(backend, f.logger, classifierCfg.Timeout,
		engineCfg.LegitimacyThreshold, engineCfg.ConfidenceFloor)
}
