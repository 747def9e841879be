// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nexastudio/creditmeter/adapters/clock"
	apihttp "github.com/nexastudio/creditmeter/adapters/http"
	"github.com/nexastudio/creditmeter/adapters/idgen"
	"github.com/nexastudio/creditmeter/adapters/metrics"
	"github.com/nexastudio/creditmeter/adapters/redis"
	"github.com/nexastudio/creditmeter/app"
	"github.com/nexastudio/creditmeter/config"
	"github.com/nexastudio/creditmeter/ports"
)

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Stores     *Stores
	Metrics    *metrics.Collector
	Events     *app.EventRegistry
	Plans      *app.PlanRegistry
	Tracker    *app.Tracker
	Sync       *app.CatalogSync
	Handler    http.Handler
	HTTPServer *http.Server

	holder      *config.Holder
	invalidator ports.CatalogInvalidator
	origin      string

	mu       sync.Mutex
	cancel   context.CancelFunc
	syncDone chan struct{}
	closed   bool
}

// Options provides optional configuration for application initialization.
type Options struct {
	// Holder enables hot reload. Its current config overrides cfg.
	Holder *config.Holder

	// Registerer receives the metrics. Defaults to the global registry.
	Registerer prometheus.Registerer

	// LogOutput overrides stdout for the root logger.
	LogOutput io.Writer
}

// New creates and initializes the application.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Holder != nil {
		cfg = opts.Holder.Get()
	}
	if cfg == nil {
		return nil, errors.New("bootstrap: nil config")
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := SetupLogger(cfg.Logging, out)
	logger.Info().Str("driver", cfg.Database.Driver).Msg("initializing creditmeter")

	a := &App{
		Config: cfg,
		Logger: logger,
		holder: opts.Holder,
		origin: uuid.NewString(),
	}

	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		a.Metrics = metrics.NewWithRegistry(reg)
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	stores, err := OpenStores(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.Stores = stores

	ctx := context.Background()
	if err := seedIfEmpty(ctx, stores, cfg.Catalog, logger); err != nil {
		a.Shutdown()
		return nil, err
	}

	if cfg.Redis.Enabled {
		inv, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, redis.WithLogger(logger))
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.invalidator = inv
		logger.Info().Str("addr", cfg.Redis.Addr).Str("channel", inv.Channel()).Msg("catalog invalidation via redis")
	}

	if err := a.initServices(); err != nil {
		a.Shutdown()
		return nil, err
	}
	a.initHTTPServer()

	if a.holder != nil {
		a.holder.OnChange(a.applyConfig)
	}

	return a, nil
}

// Services are the application services built on a set of stores.
type Services struct {
	Events  *app.EventRegistry
	Plans   *app.PlanRegistry
	Sync    *app.CatalogSync
	Tracker *app.Tracker
}

// ServiceDeps contains what BuildServices needs beyond the config.
type ServiceDeps struct {
	Stores      *Stores
	Invalidator ports.CatalogInvalidator // nil for a single replica
	Origin      string
	Metrics     *metrics.Collector // nil disables metrics
	Logger      zerolog.Logger
}

// BuildServices wires the registries, catalog sync and tracker, and warms
// both catalog caches.
func BuildServices(ctx context.Context, cfg *config.Config, deps ServiceDeps) (*Services, error) {
	loc, err := clock.LoadLocation(cfg.Metering.Timezone)
	if err != nil {
		return nil, fmt.Errorf("metering timezone: %w", err)
	}
	mode, err := app.ParseEnforcement(cfg.Metering.Enforcement)
	if err != nil {
		return nil, err
	}

	clk := clock.NewReal(loc)
	var m app.Metrics
	if deps.Metrics != nil {
		m = deps.Metrics
	}
	regCfg := app.RegistryConfig{
		TTL:         cfg.Metering.CatalogTTL,
		Invalidator: deps.Invalidator,
		Origin:      deps.Origin,
		Metrics:     m,
	}

	s := &Services{
		Events: app.NewEventRegistry(deps.Stores.Events, clk, deps.Logger, regCfg),
		Plans:  app.NewPlanRegistry(deps.Stores.Plans, clk, deps.Logger, regCfg),
	}
	s.Sync = app.NewCatalogSync(s.Events, s.Plans, deps.Invalidator, deps.Origin, deps.Logger)
	s.Tracker = app.NewTracker(app.TrackerDeps{
		Events:  s.Events,
		Plans:   s.Plans,
		Ledger:  deps.Stores.Usage,
		Orgs:    deps.Stores.Orgs,
		Users:   deps.Stores.Users,
		IDGen:   idgen.UUID{},
		Clock:   clk,
		Logger:  deps.Logger,
		Metrics: m,
	}, app.TrackerConfig{
		Enforcement: mode,
		Location:    loc,
	})

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := errors.Join(s.Events.Refresh(ctx), s.Plans.Refresh(ctx)); err != nil {
		deps.Logger.Warn().Err(err).Msg("initial catalog load failed")
	}

	deps.Logger.Debug().
		Str("enforcement", string(mode)).
		Str("timezone", loc.String()).
		Dur("catalog_ttl", cfg.Metering.CatalogTTL).
		Msg("services initialized")
	return s, nil
}

func (a *App) initServices() error {
	s, err := BuildServices(context.Background(), a.Config, ServiceDeps{
		Stores:      a.Stores,
		Invalidator: a.invalidator,
		Origin:      a.origin,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
	})
	if err != nil {
		return err
	}
	a.Events, a.Plans, a.Sync, a.Tracker = s.Events, s.Plans, s.Sync, s.Tracker
	return nil
}

func (a *App) initHTTPServer() {
	cfg := a.Config

	h := apihttp.NewHandler(apihttp.HandlerDeps{
		Tracker:  a.Tracker,
		Events:   a.Events,
		Plans:    a.Plans,
		Sync:     a.Sync,
		Location: a.Tracker.Location(),
		Logger:   a.Logger,
	})

	a.Handler = apihttp.NewRouter(h, a.Logger, apihttp.RouterConfig{
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		ServiceKeyHash: cfg.Auth.ServiceKeyHash,
		Timeout:        cfg.Server.RequestTimeout,
		EnableOpenAPI:  cfg.Server.OpenAPI,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Start launches the catalog sync loop. Run calls it.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.syncDone != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.syncDone = make(chan struct{})

	go func() {
		defer close(a.syncDone)
		if err := a.Sync.Run(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("catalog sync stopped")
		}
	}()
}

// Run starts the HTTP server and blocks until ctx is done or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		a.Logger.Info().Msg("context done, shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application. It is safe to call twice.
func (a *App) Shutdown() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel, syncDone := a.cancel, a.syncDone
	timeout := 30 * time.Second
	if a.Config != nil && a.Config.Server.ShutdownTimeout > 0 {
		timeout = a.Config.Server.ShutdownTimeout
	}
	a.mu.Unlock()

	ctx, done := context.WithTimeout(context.Background(), timeout)
	defer done()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if cancel != nil {
		cancel()
		select {
		case <-syncDone:
		case <-ctx.Done():
			a.Logger.Warn().Msg("catalog sync did not stop in time")
		}
	}

	if a.invalidator != nil {
		if err := a.invalidator.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("redis close error")
		}
	}

	if a.Stores != nil {
		if err := a.Stores.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// applyConfig applies the reloadable parts of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.Config
	a.Config = cfg
	a.mu.Unlock()

	var errs []error

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	if mode, err := app.ParseEnforcement(cfg.Metering.Enforcement); err == nil {
		if mode != a.Tracker.Enforcement() {
			a.Tracker.SetEnforcement(mode)
			a.Logger.Info().Str("enforcement", string(mode)).Msg("enforcement mode updated")
		}
	} else {
		errs = append(errs, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if old == nil || old.Catalog != cfg.Catalog {
		events, plans, err := SeedCatalogs(ctx, a.Stores, cfg.Catalog)
		if err != nil {
			errs = append(errs, err)
		} else {
			a.Logger.Info().Int("events", events).Int("plans", plans).Msg("catalog files reseeded")
		}
	}

	if err := a.Sync.RefreshAll(ctx); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		a.Logger.Error().Err(err).Msg("config reload applied with errors")
	}
	a.Metrics.ObserveReload(err)
}

// SetupLogger builds the root logger from the logging config.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
