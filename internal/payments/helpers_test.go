package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/burudani/burudani-backend/internal/users"
	dbpkg "github.com/burudani/burudani-backend/pkg/db"
	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/enums"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
	"github.com/burudani/burudani-backend/pkg/migrate"
	"github.com/burudani/burudani-backend/pkg/outbox"
	"github.com/burudani/burudani-backend/pkg/outbox/payloads"
	"github.com/burudani/burudani-backend/pkg/zenopay"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migrate.AutoMigrateModels(conn))
	return conn
}

type stubGateway struct {
	mu          sync.Mutex
	ack         *zenopay.ProviderAck
	initiateErr error
	status      *zenopay.StatusRecord
	queryErr    error
	onInitiate  func(req zenopay.ChargeRequest)
	charges     []zenopay.ChargeRequest
	queries     []string
}

func (g *stubGateway) InitiateCharge(ctx context.Context, req zenopay.ChargeRequest) (*zenopay.ProviderAck, error) {
	g.mu.Lock()
	g.charges = append(g.charges, req)
	hook := g.onInitiate
	g.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	if g.ack != nil {
		return g.ack, nil
	}
	return &zenopay.ProviderAck{Raw: json.RawMessage(`{"status":"success","resultcode":"000"}`)}, nil
}

func (g *stubGateway) QueryStatus(ctx context.Context, orderID string) (*zenopay.StatusRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, orderID)
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	if g.status == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "no status configured")
	}
	return g.status, nil
}

type stubUsers struct {
	users map[uuid.UUID]*models.User
}

func (s stubUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, users.ErrNotFound
}

type stubRecorder struct {
	mu          sync.Mutex
	transitions []string
	webhooks    []string
}

func (r *stubRecorder) ObserveTransition(from, to, trigger string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+">"+to+"@"+trigger)
}

func (r *stubRecorder) ObserveWebhook(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks = append(r.webhooks, outcome)
}

type harness struct {
	conn     *gorm.DB
	repo     Repository
	gateway  *stubGateway
	users    stubUsers
	recorder *stubRecorder
	svc      *Service
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRepo(t, nil)
}

func newHarnessWithRepo(t *testing.T, wrap func(Repository) Repository) *harness {
	t.Helper()
	conn := openTestDB(t)
	h := &harness{
		conn:     conn,
		repo:     NewRepository(conn),
		gateway:  &stubGateway{},
		users:    stubUsers{users: map[uuid.UUID]*models.User{}},
		recorder: &stubRecorder{},
		now:      baseTime,
	}
	repo := h.repo
	if wrap != nil {
		repo = wrap(repo)
	}
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Gateway:           h.gateway,
		TransactionRunner: dbpkg.NewFromGorm(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		Users:             h.users,
		Recorder:          h.recorder,
		CallbackURL:       "https://api.burudani.test/api/v1/webhooks/zenopay",
		Now:               func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) load(t *testing.T, orderID string) *models.PaymentIntent {
	t.Helper()
	intent, err := h.repo.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return intent
}

// force writes a status directly, standing in for an earlier settled signal.
func (h *harness) force(t *testing.T, orderID string, status enums.PaymentStatus) {
	t.Helper()
	current := h.load(t, orderID)
	ok, err := h.repo.UpdateGuarded(context.Background(), orderID, current.Status, map[string]any{
		"status":     status,
		"updated_at": h.now,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func (h *harness) outboxEvents(t *testing.T) []payloads.PaymentStatusChangedEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Order("created_at ASC").Find(&rows).Error)
	events := make([]payloads.PaymentStatusChangedEvent, 0, len(rows))
	for _, row := range rows {
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload.Raw(), &envelope))
		var event payloads.PaymentStatusChangedEvent
		require.NoError(t, json.Unmarshal(envelope.Data, &event))
		events = append(events, event)
	}
	return events
}

func (h *harness) webhookEvents(t *testing.T) []models.PaymentWebhookEvent {
	t.Helper()
	var rows []models.PaymentWebhookEvent
	require.NoError(t, h.conn.Order("received_at ASC").Find(&rows).Error)
	return rows
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error: %v", err)
}
