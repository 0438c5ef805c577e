package payments

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/enums"
)

// CreateInput is a request to start a mobile-money charge. OwnerID is nil for guests.
type CreateInput struct {
	OrderID     string
	OwnerID     *uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	BuyerPhone  string
	BuyerEmail  string
	BuyerName   string
	CallbackURL string
}

// CreateResult carries the stored intent and the provider acknowledgement.
type CreateResult struct {
	Payment         *models.PaymentIntent
	ProviderPayload json.RawMessage
}

// PollResult is the current intent plus the live provider answer, when one was obtained.
type PollResult struct {
	Payment         *models.PaymentIntent
	ProviderPayload json.RawMessage
	LiveCheckError  string
}

// WebhookDelivery is an authenticated provider callback.
type WebhookDelivery struct {
	OrderID       string
	PaymentStatus string
	Reference     string
	Channel       string
	TransactionID string
	Metadata      json.RawMessage
	RawBody       []byte
}

// WebhookResult reports what the delivery did to the ledger.
type WebhookResult struct {
	OrderID string
	Outcome enums.WebhookOutcome
	Status  enums.PaymentStatus
}

// ListResult is one page of the caller's intents.
type ListResult struct {
	Payments   []models.PaymentIntent
	NextCursor string
}
