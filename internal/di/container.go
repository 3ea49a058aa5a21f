package di

import (
	"context"
	"errors"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/audit"
	"github.com/mikey/giveaway-engine/internal/adapters/browser"
	"github.com/mikey/giveaway-engine/internal/adapters/profile"
	"github.com/mikey/giveaway-engine/internal/automation"
	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
	"github.com/mikey/giveaway-engine/internal/domainlist"
	"github.com/mikey/giveaway-engine/internal/factory"
	"github.com/mikey/giveaway-engine/internal/logging"
	"github.com/mikey/giveaway-engine/internal/ports"
	"github.com/mikey/giveaway-engine/internal/ratelimit"
	"github.com/mikey/giveaway-engine/internal/tracing"
	"github.com/mikey/giveaway-engine/internal/utils"
)

// Lifecycle releases everything the container opened, in reverse order
type Lifecycle struct {
	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

func (l *Lifecycle) add(name string, fn func(context.Context) error) {
	l.closers = append(l.closers, namedCloser{name: name, close: fn})
}

// Close runs every registered closer and joins their errors
func (l *Lifecycle) Close(ctx context.Context) error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		c := l.closers[i]
		if err := c.close(ctx); err != nil {
			l.logger.Error("Failed to close resource", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildContainer creates and configures a dependency injection container
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.Load(configPath)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register tracing
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (tracing.Shutdown, error) {
		return tracing.Setup(context.Background(), cfg.GetTracing(), logger)
	}); err != nil {
		return nil, err
	}

	// Register text processor and factories
	for _, constructor := range []any{
		utils.NewTextProcessor,
		factory.NewClassifierFactory,
		factory.NewStoreFactory,
		factory.NewSourceFactory,
		factory.NewNotifyFactory,
		factory.NewAuditFactory,
		factory.NewBrowserFactory,
	} {
		if err := container.Provide(constructor); err != nil {
			return nil, err
		}
	}

	// Register classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ClassifierFactory, backend core.Classifier) *core.ClassifierAdapter {
		return f.CreateAdapter(backend)
	}); err != nil {
		return nil, err
	}

	// Register store, source, notifier, audit sink and browser
	if err := container.Provide(func(f *factory.StoreFactory) (factory.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.SourceFactory) (core.EmailSource, error) {
		return f.CreateSource()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.NotifyFactory) (core.Notifier, error) {
		return f.CreateNotifier()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.AuditFactory, st factory.Store) (*audit.Async, error) {
		return f.CreateAuditSink(st)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.BrowserFactory) (*browser.Chrome, error) {
		return f.CreateBrowser()
	}); err != nil {
		return nil, err
	}

	// Register rate limiter
	if err := container.Provide(func(cfg *config.Config) core.RateLimiter {
		rl := cfg.GetRateLimit()
		return ratelimit.New(rl.Actions, rl.Window, rl.MaxInFlight)
	}); err != nil {
		return nil, err
	}

	// Register profile, sender filter and automator
	if err := container.Provide(func(cfg *config.Config) core.ProfileProvider {
		return profile.NewStatic(cfg.GetProfile().Fields)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.SenderFilter {
		domains := cfg.GetEngine().BlockedDomains
		if len(domains) > 0 {
			logger.Info("Loaded blocked domains", zap.Strings("domains", domains))
		}
		return domainlist.NewChecker(domains, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.Automator {
		a := cfg.GetAutomation()
		return automation.NewRunner(automation.Config{
			NavigationTimeout:   a.NavigationTimeout,
			FormTimeout:         a.FormTimeout,
			ConfirmationTimeout: a.ConfirmationTimeout,
		}, logger)
	}); err != nil {
		return nil, err
	}

	// Register engine and scheduler
	if err := container.Provide(newEngine); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		engine *core.Engine,
		source core.EmailSource,
		st factory.Store,
		logger *zap.Logger,
	) *core.Scheduler {
		e := cfg.GetEngine()
		return core.NewScheduler(engine, source, st, core.SchedulerConfig{
			Workers:      e.Workers,
			PollInterval: e.PollInterval,
			ResumeBatch:  e.ResumeBatch,
			MaxDeferrals: e.MaxDeferrals,
		}, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *core.Scheduler) ports.Runner {
		return s
	}); err != nil {
		return nil, err
	}

	// Register lifecycle
	if err := container.Provide(newLifecycle); err != nil {
		return nil, err
	}

	return container, nil
}

type engineParams struct {
	dig.In

	Config     *config.Config
	Logger     *zap.Logger
	Store      factory.Store
	Classifier *core.ClassifierAdapter
	Limiter    core.RateLimiter
	Browser    *browser.Chrome
	Automator  core.Automator
	Profile    core.ProfileProvider
	Notifier   core.Notifier
	Audit      *audit.Async
	Senders    core.SenderFilter
}

func newEngine(p engineParams) *core.Engine {
	e := p.Config.GetEngine()
	a := p.Config.GetAutomation()
	return core.NewEngine(core.EngineDeps{
		Store:      p.Store,
		Classifier: p.Classifier,
		Limiter:    p.Limiter,
		Browser:    p.Browser,
		Automator:  p.Automator,
		Profile:    p.Profile,
		Notifier:   p.Notifier,
		Audit:      p.Audit,
		Senders:    p.Senders,
	}, core.EngineConfig{
		MaxAttempts:    e.MaxAttempts,
		RetryBase:      e.RetryBase,
		RetryMax:       e.RetryMax,
		Lease:          e.Lease,
		AcquireTimeout: e.AcquireTimeout,
		TaskDeadline:   a.Deadline,
		Hint: core.FormHint{
			FormSelector:   a.FormSelector,
			SubmitSelector: a.SubmitSelector,
		},
		ConfirmationPatterns: a.ConfirmationPatterns,
		Aliases:              p.Config.GetProfile().Aliases,
	}, p.Logger)
}

type lifecycleParams struct {
	dig.In

	Logger     *zap.Logger
	Tracing    tracing.Shutdown
	Store      factory.Store
	Audit      *audit.Async
	Browser    *browser.Chrome
	Source     core.EmailSource
	Classifier core.Classifier
}

func newLifecycle(p lifecycleParams) *Lifecycle {
	l := &Lifecycle{logger: p.Logger}
	l.add("tracing", p.Tracing)
	l.add("store", func(context.Context) error { return p.Store.Close() })
	// The audit writer drains into the store, so it closes first
	l.add("audit", func(context.Context) error { return p.Audit.Close() })
	l.add("browser", func(context.Context) error { return p.Browser.Close() })
	if stopper, ok := p.Source.(interface{ Stop() error }); ok {
		l.add("source", func(context.Context) error { return stopper.Stop() })
	}
	if closer, ok := p.Classifier.(interface{ Close() error }); ok {
		l.add("classifier", func(context.Context) error { return closer.Close() })
	}
	return l
}
