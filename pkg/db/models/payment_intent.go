package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/burudani/burudani-backend/pkg/db/types"
	"github.com/burudani/burudani-backend/pkg/enums"
)

// PaymentIntent is one attempted mobile-money charge, keyed by order id.
// Rows are never deleted.
type PaymentIntent struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID               string              `gorm:"column:order_id;type:varchar(100);not null;uniqueIndex:payment_intents_order_id_key" json:"order_id"`
	OwnerID               *uuid.UUID          `gorm:"column:owner_id;type:uuid" json:"owner_id,omitempty"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency              enums.Currency      `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Status                enums.PaymentStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Method                enums.PaymentMethod `gorm:"column:payment_method;type:varchar(20);not null" json:"payment_method"`
	BuyerPhone            string              `gorm:"column:buyer_phone;type:varchar(20);not null" json:"buyer_phone"`
	BuyerEmail            *string             `gorm:"column:buyer_email;type:varchar(255)" json:"buyer_email,omitempty"`
	BuyerName             *string             `gorm:"column:buyer_name;type:varchar(255)" json:"buyer_name,omitempty"`
	ProviderTransactionID *string             `gorm:"column:provider_transaction_id;type:varchar(100)" json:"provider_transaction_id,omitempty"`
	ProviderReference     *string             `gorm:"column:provider_reference;type:varchar(100)" json:"provider_reference,omitempty"`
	ProviderChannel       *string             `gorm:"column:provider_channel;type:varchar(50)" json:"provider_channel,omitempty"`
	ProviderAck           dbtypes.JSON        `gorm:"column:provider_ack;type:jsonb" json:"-"`
	FailureReason         *string             `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	CreatedAt             time.Time           `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	return nil
}
