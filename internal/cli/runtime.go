package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aksel/sage/internal/config"
	"github.com/aksel/sage/internal/logger"
	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/llm"
	"github.com/aksel/sage/pkg/orchestrator"
	"github.com/aksel/sage/pkg/prompts"
	"github.com/aksel/sage/pkg/session"
	"github.com/aksel/sage/pkg/tools"
)

// runtime bundles the assembled components behind the query commands.
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	library  *prompts.Library
	watcher  *prompts.Watcher
	registry *tools.Registry
	store    *session.Store
	service  *orchestrator.Service
}

// initBase loads and validates configuration, applies the global flags, and
// installs the logger. Interactive commands pass console=false so log lines
// go to the file only and do not interleave with their output.
func initBase(console bool) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   console,
		Pretty:    console,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := tracing.InitOpenTelemetry("sage"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing")
	}

	return cfg, lg, nil
}

// assemble wires the query engine on top of an initialized base. observer
// may be nil; serve passes the gateway broadcaster so connected clients see
// progress events.
func assemble(cfg *config.Config, lg *logger.Logger, observer orchestrator.Observer) (*runtime, error) {
	library := prompts.NewLibrary()

	var watcher *prompts.Watcher
	if cfg.Prompts.Dir != "" {
		w, err := prompts.NewWatcher(cfg.Prompts.Dir, library)
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.Prompts.Dir).Msg("Prompt override watcher unavailable")
		} else if err := w.Start(); err != nil {
			log.Warn().Err(err).Str("dir", cfg.Prompts.Dir).Msg("Failed to start prompt override watcher")
		} else {
			watcher = w
		}
	}

	generator, err := llm.NewClient(llm.Config{
		Provider:    cfg.Provider.Name,
		Model:       cfg.Provider.Model,
		APIKey:      cfg.Provider.APIKey,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
		MaxRetries:  cfg.Provider.MaxRetries,
	}, library)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	store, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	service, err := orchestrator.NewService(orchestrator.Config{
		Generator:             generator,
		Registry:              registry,
		Library:               library,
		Observer:              observer,
		MaxIterations:         cfg.Agent.MaxIterations,
		ResearchMaxIterations: cfg.Agent.ResearchMaxIterations,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		log:      lg,
		library:  library,
		watcher:  watcher,
		registry: registry,
		store:    store,
		service:  service,
	}, nil
}

// buildRuntime is the single-call bootstrap used by commands that need the
// full engine but no gateway.
func buildRuntime(observer orchestrator.Observer, console bool) (*runtime, error) {
	cfg, lg, err := initBase(console)
	if err != nil {
		return nil, err
	}

	rt, err := assemble(cfg, lg, observer)
	if err != nil {
		_ = lg.Close()
		return nil, err
	}
	return rt, nil
}

// buildRegistry constructs the tool registry from configuration.
func buildRegistry(cfg *config.Config) (*tools.Registry, error) {
	registry, err := tools.NewDefaultRegistry(tools.Options{
		HTTPTimeout:   time.Duration(cfg.Tools.HTTPTimeout) * time.Second,
		PythonBin:     cfg.Tools.PythonBin,
		PythonTimeout: time.Duration(cfg.Tools.PythonTimeout) * time.Second,
		WebFetch: tools.WebFetchOptions{
			Enabled: cfg.Tools.WebFetch.Enabled,
			Timeout: time.Duration(cfg.Tools.WebFetch.Timeout) * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}
	return registry, nil
}

// Close releases runtime resources.
func (r *runtime) Close() {
	if r.watcher != nil {
		_ = r.watcher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = tracing.ShutdownOpenTelemetry(ctx)

	if r.log != nil {
		_ = r.log.Close()
	}
}
