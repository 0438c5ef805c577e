package payments

import (
	"strings"
	"time"

	"github.com/burudani/burudani-backend/pkg/db/models"
	dbtypes "github.com/burudani/burudani-backend/pkg/db/types"
	"github.com/burudani/burudani-backend/pkg/enums"
)

// StatusReport is a provider claim about an intent, from a poll or a webhook.
type StatusReport struct {
	Status        enums.PaymentStatus
	TransactionID string
	Reference     string
	Channel       string
}

// resolveReport decides how a report changes an intent. Terminal intents are
// frozen; otherwise the reported status wins and non-empty provider fields
// replace the stored ones.
func resolveReport(intent *models.PaymentIntent, report StatusReport) (enums.WebhookOutcome, map[string]any) {
	if intent.Status.IsTerminal() {
		return enums.WebhookOutcomeIgnoredTerminal, nil
	}

	fields := map[string]any{}
	setIfChanged(fields, "provider_transaction_id", intent.ProviderTransactionID, report.TransactionID)
	setIfChanged(fields, "provider_reference", intent.ProviderReference, report.Reference)
	setIfChanged(fields, "provider_channel", intent.ProviderChannel, report.Channel)

	if report.Status == intent.Status {
		return enums.WebhookOutcomeUnchanged, fields
	}
	fields["status"] = report.Status
	if report.Status == enums.PaymentStatusFailed && intent.FailureReason == nil {
		fields["failure_reason"] = failureReasonProvider
	}
	return enums.WebhookOutcomeApplied, fields
}

func setIfChanged(fields map[string]any, column string, current *string, reported string) {
	reported = strings.TrimSpace(reported)
	if reported == "" {
		return
	}
	if current != nil && *current == reported {
		return
	}
	fields[column] = reported
}

// applyFields mirrors a successful guarded update onto the in-memory intent.
func applyFields(intent *models.PaymentIntent, fields map[string]any) {
	for column, value := range fields {
		switch column {
		case "status":
			intent.Status = value.(enums.PaymentStatus)
		case "provider_transaction_id":
			intent.ProviderTransactionID = stringPtr(value.(string))
		case "provider_reference":
			intent.ProviderReference = stringPtr(value.(string))
		case "provider_channel":
			intent.ProviderChannel = stringPtr(value.(string))
		case "failure_reason":
			intent.FailureReason = stringPtr(value.(string))
		case "provider_ack":
			intent.ProviderAck = value.(dbtypes.JSON)
		case "updated_at":
			intent.UpdatedAt = value.(time.Time)
		}
	}
}

func stringPtr(v string) *string {
	return &v
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
