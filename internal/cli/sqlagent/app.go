package sqlagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/duckmesh/sqlagent/internal/agent"
	"github.com/duckmesh/sqlagent/internal/archive"
	"github.com/duckmesh/sqlagent/internal/bootstrap"
	"github.com/duckmesh/sqlagent/internal/config"
	"github.com/duckmesh/sqlagent/internal/executor"
	"github.com/duckmesh/sqlagent/internal/nl2sql"
	"github.com/duckmesh/sqlagent/internal/observability"
	"github.com/duckmesh/sqlagent/internal/schema"
	s3store "github.com/duckmesh/sqlagent/internal/storage/s3"
	"github.com/duckmesh/sqlagent/internal/store"
)

// app holds the wired components of one command invocation.
type app struct {
	cfg          config.Config
	logger       *slog.Logger
	store        *store.Store
	introspector schema.Introspector
	describer    *schema.Describer
	archiver     *archive.Archiver
	closers      []func() error
	// fresh is decided before opening, since opening a SQLite file creates it.
	fresh bool
}

type appOptions struct {
	// autoBootstrap applies the bundled schema when the store needs it and
	// configuration allows it.
	autoBootstrap bool
}

func (e *environment) openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: observability.NewLogger(cfg, e.stderr)}

	location, err := store.ParseDSN(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if a.fresh, err = bootstrap.Needed(location); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Config{
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	if opts.autoBootstrap && cfg.Store.Bootstrap {
		if _, err := a.bootstrap(ctx, false); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	introspector, err := schema.New(st.DB, st.Dialect(), cfg.Store.SchemaName)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.introspector = introspector
	a.describer = schema.NewDescriber(introspector)
	return a, nil
}

// bootstrap creates and seeds the bundled schema. Without force an existing
// store is left alone. It reports whether anything was applied.
func (a *app) bootstrap(ctx context.Context, force bool) (bool, error) {
	if force && a.store.Dialect() != store.DialectSQLite {
		return false, fmt.Errorf("bootstrap only supports sqlite stores, got %s", a.store.Dialect())
	}
	if !a.fresh && !force {
		a.logger.DebugContext(ctx, "bootstrap skipped", slog.String("dialect", string(a.store.Dialect())))
		return false, nil
	}
	count, err := bootstrap.NewRunner().Apply(ctx, a.store.DB)
	if err != nil {
		return false, err
	}
	a.fresh = false
	a.logger.InfoContext(ctx, "bootstrap applied", slog.Int("statements", count))
	return true, nil
}

// openArchive connects the session archive when it is enabled. It returns
// nil without error when archiving is off.
func (e *environment) openArchive(ctx context.Context, cfg config.Config, logger *slog.Logger) (*archive.Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	objectStore := e.objectStore
	if objectStore == nil {
		s3, err := s3store.New(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("open session archive: %w", err)
		}
		objectStore = s3
	}
	return archive.New(objectStore, logger)
}

// newAgent wires the model, transformers, executor and archive around the
// already opened store.
func (a *app) newAgent(ctx context.Context, env *environment) (*agent.Agent, error) {
	model, err := env.newModel(ctx, a.cfg.AI, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init language model: %w", err)
	}
	if closer, ok := model.(io.Closer); ok {
		a.closers = append(a.closers, closer.Close)
	}

	archiver, err := env.openArchive(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.archiver = archiver

	agentCfg := agent.Config{
		MaxAttempts: a.cfg.Agent.MaxAttempts,
		Logger:      a.logger,
	}
	if archiver != nil {
		agentCfg.Recorder = archiver
	}

	transformers := nl2sql.New(model, nl2sql.Config{
		Dialect:             dialectName(a.store.Dialect()),
		Temperature:         a.cfg.AI.Temperature,
		FallbackTemperature: a.cfg.AI.FallbackTemperature,
	})
	exec := executor.New(a.store.DB,
		executor.WithTimeout(a.cfg.Store.QueryTimeout),
		executor.WithLogger(a.logger),
	)
	return agent.New(transformers, exec, a.describer, agentCfg)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func dialectName(dialect store.Dialect) string {
	switch dialect {
	case store.DialectSQLite:
		return "SQLite"
	case store.DialectDuckDB:
		return "DuckDB"
	case store.DialectPostgres:
		return "PostgreSQL"
	default:
		return string(dialect)
	}
}
