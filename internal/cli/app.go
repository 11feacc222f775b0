package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/berth-dev/clipforge/internal/config"
	"github.com/berth-dev/clipforge/internal/log"
	"github.com/berth-dev/clipforge/internal/metrics"
	"github.com/berth-dev/clipforge/internal/platform"
	"github.com/berth-dev/clipforge/internal/platform/simulated"
	"github.com/berth-dev/clipforge/internal/session"
	"github.com/berth-dev/clipforge/internal/workflow"
)

// app is everything one command invocation needs, built from config.
type app struct {
	root     string
	cfg      *config.Config
	logger   *log.Logger
	store    *session.Store
	registry *platform.Registry
	exporter *metrics.Exporter
}

// outputDir is where session artifacts are downloaded.
func (a *app) outputDir() string {
	return filepath.Join(a.root, "output")
}

// openApp reads config and opens the session store. Missing config falls
// back to defaults so read-only commands work before `clipforge init`.
func openApp(ctx context.Context) (*app, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}

	cfg, err := config.LoadOrDefault(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := log.NewLogger(filepath.Join(root, config.Dir))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	backend, err := openBackend(root, cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := metrics.NewExporter(ctx, cfg.Metrics)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	store := session.NewStore(backend,
		session.WithAutosaveInterval(cfg.Execution.AutosaveInterval()),
		session.WithLogger(logger),
	)

	return &app{
		root:     root,
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: newRegistry(cfg),
		exporter: exporter,
	}, nil
}

func openBackend(root string, cfg *config.Config) (session.Backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		path := cfg.DatabasePath(root)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
		return session.NewSQLiteBackend(path)
	default:
		return session.NewFileBackend(cfg.StatePath(root))
	}
}

// newRegistry registers the built-in platforms. Both are simulated; real
// gateways register the same way.
func newRegistry(cfg *config.Config) *platform.Registry {
	r := platform.NewRegistry()
	rate := float64(cfg.Execution.SubmitRatePerMin)
	for _, profile := range []simulated.Profile{simulated.JimengProfile(), simulated.SoraProfile()} {
		gw := simulated.New(profile)
		r.Register(gw, gw.Aliases(), platform.WithRateLimit(rate, cfg.Execution.MaxConcurrency))
	}
	return r
}

// passThrough stands in for the external design and upscale services. It
// forwards the previous phase's artifacts unchanged at no cost.
var passThrough = workflow.PhaseRunnerFunc(func(ctx context.Context, in workflow.PhaseInput) (workflow.PhaseOutput, error) {
	return workflow.PhaseOutput{Artifacts: in.Artifacts}, nil
})

// orchestrator builds a workflow.Orchestrator wired to this app.
func (a *app) orchestrator(sink workflow.Sink) *workflow.Orchestrator {
	opts := []workflow.Option{
		workflow.WithSink(sink),
		workflow.WithLogger(a.logger),
		workflow.WithMetrics(a.exporter.Recorder),
		workflow.WithOutputDir(a.outputDir()),
	}
	for _, p := range workflow.Phases {
		if p != workflow.PhaseGeneration {
			opts = append(opts, workflow.WithRunner(p, passThrough))
		}
	}
	return workflow.New(a.cfg, a.store, a.registry, opts...)
}

// Close flushes sessions and metrics.
func (a *app) Close() error {
	storeErr := a.store.Close()
	metricsErr := a.exporter.Close(context.Background())
	return errors.Join(storeErr, metricsErr)
}
