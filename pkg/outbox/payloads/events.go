package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/burudani/burudani-backend/pkg/enums"
)

// PaymentStatusChangedEvent is emitted for every applied payment intent transition.
type PaymentStatusChangedEvent struct {
	PaymentIntentID uuid.UUID            `json:"payment_intent_id"`
	OrderID         string               `json:"order_id"`
	OwnerID         *uuid.UUID           `json:"owner_id,omitempty"`
	From            enums.PaymentStatus  `json:"from"`
	To              enums.PaymentStatus  `json:"to"`
	Trigger         enums.PaymentTrigger `json:"trigger"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        enums.Currency       `json:"currency"`
	TransactionID   *string              `json:"transaction_id,omitempty"`
	FailureReason   *string              `json:"failure_reason,omitempty"`
	OccurredAt      time.Time            `json:"occurred_at"`
}
