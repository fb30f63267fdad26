package main

import (
	"context"
	"fmt"
	"io"

	"github.com/yairfalse/vigil/config"
	"github.com/yairfalse/vigil/executor"
	"github.com/yairfalse/vigil/internal/filter"
	runtimeconfig "github.com/yairfalse/vigil/internal/config"
	"github.com/yairfalse/vigil/orchestrator"
	"github.com/yairfalse/vigil/policy"
	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/providers/centreon"
	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
	"github.com/yairfalse/vigil/wal"
)

// app holds the components a reconciliation run needs
type app struct {
	cfg      *runtimeconfig.Config
	logger   *telemetry.Logger
	history  *storage.MVCCStorage
	journal  *wal.WAL
	engine   *executor.Engine
	orch     *orchestrator.Orchestrator
	shutdown []func(context.Context) error
}

// newApp connects to the remote and opens local state. Close must be called.
func newApp(ctx context.Context, cfg *runtimeconfig.Config, logOut io.Writer, dryRun bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &app{cfg: cfg, logger: newLogger(logOut)}

	otelShutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.OTEL.Environment,
		OTELEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("telemetry initialization failed, running without it")
	} else {
		a.shutdown = append(a.shutdown, otelShutdown)
	}

	a.history, err = storage.NewMVCCStorage(cfg.Storage.Dir)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	a.shutdown = append(a.shutdown, func(context.Context) error { return a.history.Close() })

	if cfg.Storage.Journal() {
		a.journal, err = wal.OpenWithConfig(cfg.Storage.JournalDir(), journalConfig(cfg))
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.shutdown = append(a.shutdown, func(context.Context) error { return a.journal.Close() })
	}

	enforcer, err := a.loadPolicies(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	client, err := providers.GetProvider(ctx, centreon.ProviderName, providers.ProviderConfig{
		URL:           cfg.Centreon.URL,
		Username:      cfg.Centreon.Username,
		Password:      cfg.Centreon.Password,
		ValidateCerts: cfg.Centreon.VerifyTLS(),
		Timeout:       cfg.Centreon.Timeout,
		RateLimit:     cfg.Centreon.RateLimit,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to connect to centreon: %w", err)
	}

	a.engine = executor.NewEngine(client, a.journal, a.logger, telemetry.Metrics, executor.ExecutorOptions{DryRun: dryRun})
	a.orch = orchestrator.NewOrchestrator(a.engine, a.logger).
		WithHistory(a.history).
		WithEnforcer(enforcer).
		WithMetrics(telemetry.Metrics).
		WithTracer(telemetry.Tracer).
		WithDryRun(dryRun)

	return a, nil
}

func (a *app) loadPolicies(ctx context.Context) (*policy.Enforcer, error) {
	if a.cfg.Policy.Dir == "" {
		return nil, nil
	}
	engine := policy.NewPolicyEngine(a.history, a.logger)
	if _, err := policy.NewPolicyLoader(a.cfg.Policy.Dir, engine).LoadPolicies(ctx); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	return policy.NewEnforcer(engine, a.logger, telemetry.Metrics), nil
}

// Close releases everything newApp opened, newest first
func (a *app) Close(ctx context.Context) {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			a.logger.Warn().Err(err).Msg("shutdown step failed")
		}
	}
	a.shutdown = nil
}

func journalConfig(cfg *runtimeconfig.Config) wal.Config {
	jc := wal.DefaultConfig()
	jc.RetentionDays = cfg.Storage.RetentionDays
	return jc
}

// selection holds the manifest filter flags shared by apply and daemon
type selection struct {
	selector     string
	exclude      string
	excludeKinds []string
}

func (s selection) build() (*filter.Filter, error) {
	include, err := filter.ParseSelector(s.selector)
	if err != nil {
		return nil, err
	}
	exclude, err := filter.ParseSelector(s.exclude)
	if err != nil {
		return nil, err
	}
	kinds, err := filter.ParseKinds(s.excludeKinds)
	if err != nil {
		return nil, err
	}
	return filter.New(kinds, include, exclude), nil
}

// loadSpecs loads a manifest, folds runtime defaults in and applies the filter
func loadSpecs(path string, cfg *runtimeconfig.Config, f *filter.Filter) ([]types.EntitySpec, error) {
	manifest, err := config.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	manifest.ApplyRuntimeDefaults(cfg.Defaults.Instance, cfg.Defaults.ApplyConfig)
	return f.FilterSpecs(manifest.Entities), nil
}
