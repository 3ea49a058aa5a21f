package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
	"github.com/mikey/giveaway-engine/internal/domainlist"
	"github.com/mikey/giveaway-engine/internal/factory"
	"github.com/mikey/giveaway-engine/internal/logging"
	"github.com/mikey/giveaway-engine/internal/utils"
)

// CheckFlags are the command line flags of the check command
type CheckFlags struct {
	ConfigFile string
	InputFile  string
	Provider   string
	Threshold  float64
	Verbose    bool
	JSONLog    bool
}

// BuildCheckContainer creates the reduced graph used to classify a single
// email without touching the store, the browser or the source
func BuildCheckContainer(flags *CheckFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CheckFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CheckFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration, flags win over the file
	if err := container.Provide(func(flags *CheckFlags, logger *zap.Logger) (*config.Config, error) {
		var cfg *config.Config
		if flags.ConfigFile != "" {
			loaded, err := config.Load(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", loaded.GetViper().ConfigFileUsed()))
			cfg = loaded
		} else {
			cfg = config.NewFromViper(config.NewEmptyViper())
		}

		if flags.Provider != "" {
			cfg.Set("classifier.provider", flags.Provider)
		}
		if flags.Threshold > 0 {
			cfg.Set("engine.legitimacy_threshold", flags.Threshold)
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register text processor and classifier
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ClassifierFactory) (*core.ClassifierAdapter, error) {
		backend, err := f.CreateClassifier()
		if err != nil {
			return nil, err
		}
		return f.CreateAdapter(backend), nil
	}); err != nil {
		return nil, err
	}

	// Register sender filter
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.SenderFilter {
		return domainlist.NewChecker(cfg.GetEngine().BlockedDomains, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
