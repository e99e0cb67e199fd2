package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/quire"
	"github.com/aretw0/quire/internal/config"
	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/pkg/adapters/file"
	httpadapter "github.com/aretw0/quire/pkg/adapters/http"
	"github.com/aretw0/quire/pkg/adapters/memory"
	"github.com/aretw0/quire/pkg/adapters/process"
	"github.com/aretw0/quire/pkg/adapters/redis"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/observability"
	"github.com/aretw0/quire/pkg/persistence/middleware"
	"github.com/aretw0/quire/pkg/ports"
	"github.com/aretw0/quire/pkg/session"
)

// Runtime is a fully wired engine together with the collaborators the
// commands expose (metrics registry, event streams).
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Engine   *quire.Engine
	Handlers *catalog.Handlers
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Streams  *httpadapter.StreamManager

	closers []func() error
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	logger   *slog.Logger
	handlers *catalog.Handlers
	simulate bool
}

// WithLogger replaces the logger derived from the configured log level.
func WithLogger(l *slog.Logger) BuildOption {
	return func(o *buildOptions) {
		o.logger = l
	}
}

// WithHandlers seeds the handler registry. Configured commands are added on top.
func WithHandlers(h *catalog.Handlers) BuildOption {
	return func(o *buildOptions) {
		o.handlers = h
	}
}

// WithSimulation registers a handler that succeeds immediately for every
// action that has none, so plans can be rehearsed without agents.
func WithSimulation(enabled bool) BuildOption {
	return func(o *buildOptions) {
		o.simulate = enabled
	}
}

// Build wires an engine from the configuration.
func Build(cfg config.Config, opts ...BuildOption) (*Runtime, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		logger = logging.New(level)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	handlers := o.handlers
	if handlers == nil {
		handlers = catalog.NewHandlers()
	}
	if err := bindCommands(cfg, handlers, logger); err != nil {
		return nil, err
	}
	if o.simulate {
		simulate(cat, handlers)
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Handlers: handlers,
		Registry: prometheus.NewRegistry(),
		Streams:  httpadapter.NewStreamManager(),
	}
	rt.Registry.MustRegister(collectors.NewGoCollector())

	rt.Metrics, err = observability.NewMetrics(rt.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	store, locker, err := rt.openStore(cfg.Store, cat.Bounds())
	if err != nil {
		return nil, err
	}

	sessionOpts := []session.Option{
		session.WithBounds(cat.Bounds()...),
		session.WithLockTTL(cfg.Store.LockTTL),
		session.WithLogger(logger),
	}
	if locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(locker))
	}

	rt.Engine, err = quire.New(
		quire.WithCatalog(cat),
		quire.WithHandlers(handlers),
		quire.WithLogger(logger),
		quire.WithHooks(domain.CombineHooks(
			observability.LogHooks(logger),
			rt.Metrics.Hooks(),
			httpadapter.StreamHooks(rt.Streams),
		)),
		quire.WithPlannerBudget(cfg.Planner.Budget),
		quire.WithRetryPolicy(cfg.Executor.Retry),
		quire.WithHardTimeout(cfg.Executor.HardTimeout),
		quire.WithMaxParallel(cfg.Executor.MaxParallel),
		quire.WithRateLimit(cfg.Executor.RateLimit, cfg.Executor.Burst),
		quire.WithSessions(session.NewManager(store, sessionOpts...)),
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("error initializing engine: %w", err), rt.Close())
	}
	return rt, nil
}

// MetricsHandler serves the runtime's registry in the Prometheus text format.
func (rt *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{})
}

// Close releases store connections.
func (rt *Runtime) Close() error {
	var errs []error
	for _, c := range rt.closers {
		errs = append(errs, c())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// openStore builds the configured backend wrapped in the guard and
// encryption middlewares. The locker is non-nil only for shared backends.
func (rt *Runtime) openStore(cfg config.StoreConfig, bounds []domain.Bound) (ports.StateStore, ports.DistributedLocker, error) {
	var (
		store  ports.StateStore
		locker ports.DistributedLocker
	)

	switch cfg.Backend {
	case config.BackendFile:
		store = file.New(cfg.Dir)
	case config.BackendRedis:
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		if err := rs.Client().Ping(context.Background()).Err(); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		rt.closers = append(rt.closers, rs.Close)
		store = rs
		locker = redis.NewLocker(rs.Client(), cfg.Redis.Prefix)
	default:
		store = memory.NewStore()
	}

	mws := []middleware.Middleware{
		middleware.NewInvariantMiddleware(bounds...),
		middleware.NewVersionGuard(),
	}

	key, err := cfg.Key()
	if err != nil {
		return nil, nil, err
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}

	rt.Logger.Debug("session store ready", "backend", cfg.Backend, "encrypted", key != nil)
	return middleware.Chain(store, mws...), locker, nil
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.LoadFile(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", cfg.Catalog, err)
	}
	return c, nil
}

// bindCommands registers the external commands of the handlers file.
// Relative command paths resolve against the file's directory.
func bindCommands(cfg config.Config, h *catalog.Handlers, logger *slog.Logger) error {
	if cfg.Handlers == "" {
		return nil
	}
	commands, err := process.LoadCommands(cfg.Handlers)
	if err != nil {
		return fmt.Errorf("failed to load handlers %s: %w", cfg.Handlers, err)
	}
	runner := process.NewRunner(
		process.WithRegistry(commands),
		process.WithBaseDir(filepath.Dir(cfg.Handlers)),
		process.WithLogger(logger),
	)
	runner.Bind(h)
	logger.Debug("external handlers bound", "handlers", runner.Keys())
	return nil
}

func simulate(c *catalog.Catalog, h *catalog.Handlers) {
	for _, a := range c.Actions() {
		if _, err := h.Lookup(a); err == nil {
			continue
		}
		h.RegisterFunc(a.HandlerKey(), func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
			return domain.Outcome{Output: "simulated " + inv.Action.Name}, nil
		})
	}
}
