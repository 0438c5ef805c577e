package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/burudani/burudani-backend/internal/bootstrap"
	"github.com/burudani/burudani-backend/internal/cron"
	"github.com/burudani/burudani-backend/pkg/instance"
	"github.com/burudani/burudani-backend/pkg/metrics"
	"github.com/burudani/burudani-backend/pkg/outbox"
)

const (
	serviceKind = "cron-worker"
	lockName    = "cron-worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, serviceKind)
	if err != nil {
		bootstrap.Fail(serviceKind, "failed to start", err)
	}
	cfg, logg := rt.Config, rt.Logger

	rt.ServeMetrics(ctx)

	redisClient, err := rt.Redis(ctx)
	if err != nil {
		rt.Exit(ctx, "failed to bootstrap redis", err)
	}

	paymentsService, err := rt.Payments(prometheus.DefaultRegisterer)
	if err != nil {
		rt.Exit(ctx, "failed to create payments service", err)
	}

	expiryJob, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:     logg,
		Payments:   paymentsService,
		StaleAfter: cfg.Payments.StaleAfter,
		BatchSize:  cfg.Payments.ExpiryBatch,
	})
	if err != nil {
		rt.Exit(ctx, "failed to create payment expiry job", err)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          rt.DB,
		Repository:  outbox.NewRepository(rt.DB.DB()),
		Retention:   cfg.Outbox.Retention,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		rt.Exit(ctx, "failed to create outbox retention job", err)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), 0)
	if err != nil {
		rt.Exit(ctx, "failed to create cron lock", err)
	}

	jobs := cron.NewRegistry(expiryJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Payments.ExpiryInterval,
	})
	if err != nil {
		rt.Exit(ctx, "failed to create cron service", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"jobs":        jobs.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Exit(ctx, "cron worker stopped unexpectedly", err)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
	if err := rt.Close(); err != nil {
		logg.Error(ctx, "error releasing resources", err)
	}
}
