package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/logger"
)

const (
	defaultStaleAfter  = 30 * time.Minute
	defaultExpiryBatch = 100
)

// PaymentExpirer is the engine surface the sweep drives.
type PaymentExpirer interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error)
	Expire(ctx context.Context, orderID string, cutoff time.Time) (bool, error)
}

type PaymentExpiryJobParams struct {
	Logger     *logger.Logger
	Payments   PaymentExpirer
	StaleAfter time.Duration
	BatchSize  int
}

// NewPaymentExpiryJob builds the job that moves abandoned PENDING and
// INITIATED intents to EXPIRED.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &paymentExpiryJob{
		logg:       params.Logger,
		payments:   params.Payments,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg       *logger.Logger
	payments   PaymentExpirer
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

// Run expires one batch per cycle. Anything left over is picked up next cycle.
func (j *paymentExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	stale, err := j.payments.ListStale(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale payments: %w", err)
	}

	var (
		errs    error
		expired int
		skipped int
	)
	for _, intent := range stale {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		ok, expireErr := j.payments.Expire(ctx, intent.OrderID, cutoff)
		if expireErr != nil {
			j.logg.Warn(j.logg.WithOrderID(ctx, intent.OrderID), "payment.expire.failed")
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", intent.OrderID, expireErr))
			continue
		}
		if ok {
			expired++
		} else {
			skipped++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"expired":    expired,
		"skipped":    skipped,
		"failed":     len(multierr.Errors(errs)),
	}), "payment expiry sweep complete")
	return errs
}
