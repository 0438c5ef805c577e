package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/logger"
)

type fakeExpirer struct {
	stale      []models.PaymentIntent
	listErr    error
	listCutoff time.Time
	listLimit  int
	expireErrs map[string]error
	settled    map[string]bool
	expired    []string
}

func (f *fakeExpirer) ListStale(_ context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	f.listCutoff = cutoff
	f.listLimit = limit
	return f.stale, f.listErr
}

func (f *fakeExpirer) Expire(_ context.Context, orderID string, cutoff time.Time) (bool, error) {
	if !cutoff.Equal(f.listCutoff) {
		return false, errors.New("cutoff drifted between list and expire")
	}
	if err := f.expireErrs[orderID]; err != nil {
		return false, err
	}
	if f.settled[orderID] {
		return false, nil
	}
	f.expired = append(f.expired, orderID)
	return true, nil
}

func newExpiryJob(t *testing.T, svc PaymentExpirer, now time.Time) *paymentExpiryJob {
	t.Helper()
	job, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:     logger.Nop(),
		Payments:   svc,
		StaleAfter: 30 * time.Minute,
		BatchSize:  10,
	})
	if err != nil {
		t.Fatalf("NewPaymentExpiryJob: %v", err)
	}
	concrete := job.(*paymentExpiryJob)
	concrete.now = func() time.Time { return now }
	return concrete
}

func TestPaymentExpiryJobExpiresStaleIntents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeExpirer{
		stale:   []models.PaymentIntent{{OrderID: "a"}, {OrderID: "b"}, {OrderID: "c"}},
		settled: map[string]bool{"b": true},
	}
	job := newExpiryJob(t, svc, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !svc.listCutoff.Equal(now.Add(-30 * time.Minute)) {
		t.Fatalf("unexpected cutoff %s", svc.listCutoff)
	}
	if svc.listLimit != 10 {
		t.Fatalf("expected batch limit 10, got %d", svc.listLimit)
	}
	if len(svc.expired) != 2 || svc.expired[0] != "a" || svc.expired[1] != "c" {
		t.Fatalf("unexpected expired set %v", svc.expired)
	}
}

func TestPaymentExpiryJobContinuesPastFailures(t *testing.T) {
	svc := &fakeExpirer{
		stale: []models.PaymentIntent{{OrderID: "a"}, {OrderID: "b"}, {OrderID: "c"}},
		expireErrs: map[string]error{
			"a": errors.New("deadlock"),
			"c": errors.New("timeout"),
		},
	}
	job := newExpiryJob(t, svc, time.Now())

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 combined errors, got %d", got)
	}
	if len(svc.expired) != 1 || svc.expired[0] != "b" {
		t.Fatalf("expected b to still expire, got %v", svc.expired)
	}
}

func TestPaymentExpiryJobListError(t *testing.T) {
	svc := &fakeExpirer{listErr: errors.New("db down")}
	job := newExpiryJob(t, svc, time.Now())
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestNewPaymentExpiryJobDefaults(t *testing.T) {
	if _, err := NewPaymentExpiryJob(PaymentExpiryJobParams{Payments: &fakeExpirer{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewPaymentExpiryJob(PaymentExpiryJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected payments error")
	}
	job, err := NewPaymentExpiryJob(PaymentExpiryJobParams{Logger: logger.Nop(), Payments: &fakeExpirer{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	concrete := job.(*paymentExpiryJob)
	if concrete.staleAfter != defaultStaleAfter || concrete.batch != defaultExpiryBatch {
		t.Fatalf("expected defaults, got %s/%d", concrete.staleAfter, concrete.batch)
	}
	if job.Name() != "payment-expiry" {
		t.Fatalf("unexpected name %s", job.Name())
	}
}
