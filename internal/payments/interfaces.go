package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/enums"
	"github.com/burudani/burudani-backend/pkg/outbox"
	"github.com/burudani/burudani-backend/pkg/pagination"
	"github.com/burudani/burudani-backend/pkg/zenopay"
)

// Repository is the payment ledger. Rows are never deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	FindByOrderIDForUpdate(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	UpdateGuarded(ctx context.Context, orderID string, expected enums.PaymentStatus, fields map[string]any) (bool, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.PaymentIntent, error)
	ListStaleNonTerminal(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error)
	AppendWebhookEvent(ctx context.Context, event *models.PaymentWebhookEvent) error
}

// Gateway is the outbound mobile-money provider.
type Gateway interface {
	InitiateCharge(ctx context.Context, req zenopay.ChargeRequest) (*zenopay.ProviderAck, error)
	QueryStatus(ctx context.Context, orderID string) (*zenopay.StatusRecord, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Recorder receives transition and webhook counters. Implemented by metrics.PaymentMetrics.
type Recorder interface {
	ObserveTransition(from, to, trigger string)
	ObserveWebhook(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveTransition(string, string, string) {}
func (noopRecorder) ObserveWebhook(string)                    {}
