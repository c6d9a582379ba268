package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pendergraft/mintdeploy/internal/chains"
	"github.com/pendergraft/mintdeploy/internal/chains/evm"
	"github.com/pendergraft/mintdeploy/internal/config"
	"github.com/pendergraft/mintdeploy/internal/contract"
	"github.com/pendergraft/mintdeploy/internal/deployments/domain"
	"github.com/pendergraft/mintdeploy/internal/observability/metrics"
	"github.com/pendergraft/mintdeploy/internal/storage"
)

// app is everything a command needs for one environment
type app struct {
	cfg      *config.Config
	env      *config.Environment
	logger   *slog.Logger
	chain    *evm.Chain
	resolver *contract.Resolver
	store    storage.Store
	journal  domain.Service // nil when the journal is disabled
}

// loadConfig loads, overrides and validates the project file
func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.Load(cfgFile)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, path, fmt.Errorf("%w (run 'mintdeploy config init')", err)
		}
		return nil, path, fmt.Errorf("loading %s: %w", path, err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, path, nil
}

// loadApp resolves envName and prepares the builder and journal for mode
func loadApp(ctx context.Context, envName string, mode config.Mode) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	metrics.Init(cfg.Metrics.Enabled)

	env, err := cfg.Environment(envName)
	if err != nil {
		return nil, err
	}
	if err := env.ValidateFor(mode); err != nil {
		return nil, fmt.Errorf("environment %q is not ready to %s: %w", envName, mode, err)
	}

	chain := evm.NewChain()
	builder, err := selectBuilder(cfg, chain)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		slog.String("config", path),
		slog.String("environment", envName),
		slog.String("network", env.NetworkName),
		slog.String("builder", builder.Name()),
	)

	a := &app{
		cfg:      cfg,
		env:      env,
		logger:   logger,
		chain:    chain,
		resolver: contract.NewResolver(builder, cfg.ProjectDir),
	}

	store, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if store != nil {
		a.store = store
		a.journal = domain.NewService(store)
	}

	return a, nil
}

// close releases the journal and flushes metrics
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing journal", slog.String("error", err.Error()))
		}
	}
	if a.cfg.Metrics.Enabled {
		if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("exporting metrics", slog.String("error", err.Error()))
		}
	}
}

func selectBuilder(cfg *config.Config, chain *evm.Chain) (chains.Builder, error) {
	registry := chains.NewRegistry()
	registry.Register(chain)

	if cfg.Builder != "" {
		_, builder, err := registry.FindBuilder(cfg.Builder)
		return builder, err
	}
	_, builder, err := registry.DetectChainAndBuilder(cfg.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("%w (set builder in the config file)", err)
	}
	return builder, nil
}

// openJournal opens and migrates the configured journal. It returns nil when
// the journal is disabled.
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	journalCfg := cfg.Journal
	journalCfg.Path = cfg.JournalPath()

	store, err := storage.New(journalCfg, logger)
	if errors.Is(err, storage.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening deployment journal: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
