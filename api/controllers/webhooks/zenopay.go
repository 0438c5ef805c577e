package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/burudani/burudani-backend/api/responses"
	"github.com/burudani/burudani-backend/internal/payments"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
	"github.com/burudani/burudani-backend/pkg/logger"
)

const (
	apiKeyHeader        = "x-api-key"
	maxWebhookBodyBytes = 64 << 10
)

// ZenoPayWebhookService applies authenticated provider callbacks.
type ZenoPayWebhookService interface {
	HandleWebhook(ctx context.Context, delivery payments.WebhookDelivery) (*payments.WebhookResult, error)
}

type zenoPayPayload struct {
	OrderID       string          `json:"order_id"`
	PaymentStatus string          `json:"payment_status"`
	Reference     string          `json:"reference"`
	Channel       string          `json:"channel"`
	TransactionID string          `json:"transaction_id"`
	TransID       string          `json:"transid"`
	Metadata      json.RawMessage `json:"metadata"`
}

// ZenoPayWebhook authenticates the shared secret header before anything is
// parsed or persisted, then hands the delivery to the engine.
func ZenoPayWebhook(svc ZenoPayWebhookService, webhookKey string, logg *logger.Logger) http.HandlerFunc {
	expected := []byte(strings.TrimSpace(webhookKey))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		if !validAPIKey(r.Header.Get(apiKeyHeader), expected) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "invalid webhook credentials"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		var body zenoPayPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook body"))
			return
		}

		transactionID := strings.TrimSpace(body.TransactionID)
		if transactionID == "" {
			transactionID = strings.TrimSpace(body.TransID)
		}

		result, err := svc.HandleWebhook(ctx, payments.WebhookDelivery{
			OrderID:       strings.TrimSpace(body.OrderID),
			PaymentStatus: strings.TrimSpace(body.PaymentStatus),
			Reference:     strings.TrimSpace(body.Reference),
			Channel:       strings.TrimSpace(body.Channel),
			TransactionID: transactionID,
			Metadata:      body.Metadata,
			RawBody:       payload,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"order_id": result.OrderID,
				"outcome":  result.Outcome,
				"status":   result.Status,
			}), "zenopay.webhook.processed")
		}
		responses.WriteNoContent(w)
	}
}

func validAPIKey(provided string, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), expected) == 1
}
