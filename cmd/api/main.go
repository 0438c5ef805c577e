package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/burudani/burudani-backend/api/routes"
	"github.com/burudani/burudani-backend/internal/auth"
	"github.com/burudani/burudani-backend/internal/bootstrap"
	"github.com/burudani/burudani-backend/internal/users"
	"github.com/burudani/burudani-backend/pkg/instance"
)

const (
	serviceKind       = "api"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, serviceKind)
	if err != nil {
		bootstrap.Fail(serviceKind, "failed to start", err)
	}
	cfg, logg := rt.Config, rt.Logger

	redisClient, err := rt.Redis(ctx)
	if err != nil {
		rt.Exit(ctx, "failed to bootstrap redis", err)
	}

	paymentsService, err := rt.Payments(prometheus.DefaultRegisterer)
	if err != nil {
		rt.Exit(ctx, "failed to create payments service", err)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(rt.DB.DB()),
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		rt.Exit(ctx, "failed to create auth service", err)
	}

	// PORT wins so the platform can assign one.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:               rt.DB,
			Redis:            redisClient,
			IdempotencyStore: redisClient,
			RateLimiter:      redisClient,
			Auth:             authService,
			Payments:         paymentsService,
			Webhooks:         paymentsService,
			Metrics:          prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Exit(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		cancel()
	}

	if err := rt.Close(); err != nil {
		logg.Error(ctx, "error releasing resources", err)
	}
}
