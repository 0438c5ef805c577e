package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/burudani/burudani-backend/pkg/db/types"
	"github.com/burudani/burudani-backend/pkg/enums"
)

// PaymentWebhookEvent is the append-only audit of authenticated provider callbacks.
type PaymentWebhookEvent struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         string               `gorm:"column:order_id;type:varchar(100);not null;index"`
	PaymentIntentID *uuid.UUID           `gorm:"column:payment_intent_id;type:uuid"`
	ReportedStatus  string               `gorm:"column:reported_status;type:varchar(40);not null"`
	StatusBefore    *string              `gorm:"column:status_before;type:varchar(20)"`
	StatusAfter     *string              `gorm:"column:status_after;type:varchar(20)"`
	Outcome         enums.WebhookOutcome `gorm:"column:outcome;type:varchar(30);not null"`
	TransactionID   *string              `gorm:"column:transaction_id;type:varchar(100)"`
	Reference       *string              `gorm:"column:reference;type:varchar(100)"`
	Channel         *string              `gorm:"column:channel;type:varchar(50)"`
	Metadata        dbtypes.JSON         `gorm:"column:metadata;type:jsonb"`
	RawBody         string               `gorm:"column:raw_body;type:text;not null"`
	ReceivedAt      time.Time            `gorm:"column:received_at;not null"`
}

func (PaymentWebhookEvent) TableName() string { return "payment_webhook_events" }

func (e *PaymentWebhookEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	return nil
}
