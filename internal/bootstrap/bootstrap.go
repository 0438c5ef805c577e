// Package bootstrap holds the process wiring shared by the api, cron-worker
// and outbox-publisher binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/burudani/burudani-backend/internal/payments"
	"github.com/burudani/burudani-backend/internal/users"
	"github.com/burudani/burudani-backend/pkg/config"
	"github.com/burudani/burudani-backend/pkg/db"
	"github.com/burudani/burudani-backend/pkg/logger"
	"github.com/burudani/burudani-backend/pkg/metrics"
	"github.com/burudani/burudani-backend/pkg/migrate"
	"github.com/burudani/burudani-backend/pkg/outbox"
	"github.com/burudani/burudani-backend/pkg/redis"
	"github.com/burudani/burudani-backend/pkg/zenopay"
)

// Runtime is a booted process: config, logger and an open database, plus
// whatever else was opened through it. Close releases everything in reverse
// order.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Start loads .env and config, builds the logger for kind, connects the
// database and applies dev migrations.
func Start(ctx context.Context, kind string) (*Runtime, error) {
	boot := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	rt := &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}

	rt.DB, err = db.New(ctx, cfg.DB, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.OnClose("database", rt.DB.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
		rt.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return rt, nil
}

// Redis connects the shared redis client and schedules it for Close.
func (rt *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	rt.OnClose("redis", client.Close)
	return client, nil
}

// Payments builds the payment service on top of the runtime database and a
// ZenoPay gateway. Metrics register on reg.
func (rt *Runtime) Payments(reg prometheus.Registerer) (*payments.Service, error) {
	paymentMetrics := metrics.NewPaymentMetrics(reg)
	gateway, err := zenopay.NewClient(rt.Config.ZenoPay, zenopay.WithObserver(paymentMetrics))
	if err != nil {
		return nil, fmt.Errorf("create zenopay client: %w", err)
	}
	conn := rt.DB.DB()
	service, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(conn),
		Gateway:           gateway,
		TransactionRunner: rt.DB,
		Outbox:            outbox.NewService(outbox.NewRepository(conn), rt.Logger),
		Users:             users.NewRepository(conn),
		Recorder:          paymentMetrics,
		Logger:            rt.Logger,
		CallbackURL:       rt.Config.ZenoPay.WebhookURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create payments service: %w", err)
	}
	return service, nil
}

// ServeMetrics exposes the default prometheus registry on the worker metrics
// address until Close. It is a no-op when metrics are disabled.
func (rt *Runtime) ServeMetrics(ctx context.Context) {
	cfg := rt.Config.Metrics
	if !cfg.Enabled || cfg.WorkerAddr == "" {
		return
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{Addr: cfg.WorkerAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logCtx := rt.Logger.WithFields(ctx, map[string]any{"addr": cfg.WorkerAddr, "path": path})
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error(logCtx, "metrics server stopped", err)
		}
	}()
	rt.Logger.Info(logCtx, "metrics server listening")

	rt.OnClose("metrics server", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// OnClose schedules fn to run on Close.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: fn})
}

// Close runs every registered closer, last opened first, and returns the
// combined error.
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

// Exit logs err, releases resources and terminates with status 1.
func (rt *Runtime) Exit(ctx context.Context, msg string, err error) {
	rt.Logger.Error(ctx, msg, err)
	if closeErr := rt.Close(); closeErr != nil {
		rt.Logger.Error(ctx, "error releasing resources", closeErr)
	}
	os.Exit(1)
}

// Fail is for errors before a Runtime exists.
func Fail(kind, msg string, err error) {
	logger.New(logger.Options{ServiceName: kind}).Error(context.Background(), msg, err)
	os.Exit(1)
}
