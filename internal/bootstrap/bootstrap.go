// Package bootstrap brings up what every binary shares: environment,
// config, logger, database and optionally redis. Resources are closed in
// reverse order of opening.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/quillcoach/credits-backend/pkg/config"
	"github.com/quillcoach/credits-backend/pkg/db"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/migrate"
	"github.com/quillcoach/credits-backend/pkg/redis"
)

var exit = os.Exit

type Option func(*options)

type options struct {
	redis      bool
	migrations bool
	logOutput  io.Writer
}

// WithRedis dials redis after the database.
func WithRedis() Option { return func(o *options) { o.redis = true } }

// WithDevMigrations applies bundled migrations when running in dev with
// auto-migrate enabled.
func WithDevMigrations() Option { return func(o *options) { o.migrations = true } }

func WithLogOutput(w io.Writer) Option { return func(o *options) { o.logOutput = w } }

type closer struct {
	name  string
	close func() error
}

type Runtime struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	// Redis is nil unless WithRedis was passed.
	Redis *redis.Client

	closers []closer
}

// Start loads .env (when present) and config, then opens resources. On
// failure everything opened so far is closed and the error is logged.
func Start(ctx context.Context, service string, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	rt := &Runtime{
		Service: service,
		Logger:  logger.New(logger.Options{ServiceName: service, Output: o.logOutput}),
	}

	if err := godotenv.Load(); err != nil {
		rt.Logger.Warn(ctx, ".env file not found, relying on environment")
	}

	if err := rt.open(ctx, o); err != nil {
		rt.Logger.Error(ctx, "bootstrap failed", err)
		if closeErr := rt.Close(); closeErr != nil {
			rt.Logger.Error(ctx, "closing partially started resources", closeErr)
		}
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, o options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Service.Kind = rt.Service
	rt.Config = cfg
	rt.Logger = logger.New(logger.Options{
		ServiceName: rt.Service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Output:      o.logOutput,
	})

	rt.DB, err = db.New(ctx, cfg.DB, rt.Logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	rt.OnClose("database", rt.DB.Close)

	if o.migrations {
		if err := migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
			return fmt.Errorf("dev migrations: %w", err)
		}
	}

	if o.redis {
		rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rt.OnClose("redis", rt.Redis.Close)
	}
	return nil
}

// MustStart is Start for main packages.
func MustStart(ctx context.Context, service string, opts ...Option) *Runtime {
	rt, err := Start(ctx, service, opts...)
	if err != nil {
		exit(1)
	}
	return rt
}

// OnClose registers a resource opened outside Start so Close and Must
// release it too.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, close: fn})
}

// Close releases resources newest first and reports every failure.
func (rt *Runtime) Close() error {
	var errs error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	rt.closers = nil
	return errs
}

// Must exits the process when err is set, after releasing resources.
func (rt *Runtime) Must(ctx context.Context, resource string, err error) {
	if err == nil {
		return
	}
	rt.Logger.Error(ctx, "resource not working: "+resource, err)
	rt.Shutdown(ctx)
	exit(1)
}

// Shutdown closes resources and logs, rather than returns, any failure.
func (rt *Runtime) Shutdown(ctx context.Context) {
	if err := rt.Close(); err != nil {
		rt.Logger.Error(ctx, "error releasing resources", err)
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the
// service's standard log fields.
func (rt *Runtime) SignalContext(ctx context.Context, fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	merged := map[string]any{
		"env":          rt.Config.App.Env,
		"service_kind": rt.Service,
	}
	for k, v := range fields {
		merged[k] = v
	}
	return rt.Logger.WithFields(ctx, merged), stop
}
