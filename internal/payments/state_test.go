package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/enums"
)

func TestResolveReport(t *testing.T) {
	ref := "r1"
	tests := []struct {
		name       string
		current    enums.PaymentStatus
		reference  *string
		report     StatusReport
		outcome    enums.WebhookOutcome
		wantFields map[string]any
	}{
		{
			name:    "non-terminal moves to reported status",
			current: enums.PaymentStatusInitiated,
			report:  StatusReport{Status: enums.PaymentStatusCompleted, Reference: "r1"},
			outcome: enums.WebhookOutcomeApplied,
			wantFields: map[string]any{
				"status":             enums.PaymentStatusCompleted,
				"provider_reference": "r1",
			},
		},
		{
			name:    "failure records a reason",
			current: enums.PaymentStatusPending,
			report:  StatusReport{Status: enums.PaymentStatusFailed},
			outcome: enums.WebhookOutcomeApplied,
			wantFields: map[string]any{
				"status":         enums.PaymentStatusFailed,
				"failure_reason": failureReasonProvider,
			},
		},
		{
			name:    "non-terminal may move back to pending",
			current: enums.PaymentStatusInitiated,
			report:  StatusReport{Status: enums.PaymentStatusPending},
			outcome: enums.WebhookOutcomeApplied,
			wantFields: map[string]any{
				"status": enums.PaymentStatusPending,
			},
		},
		{
			name:       "same status with known reference is a no-op",
			current:    enums.PaymentStatusInitiated,
			reference:  &ref,
			report:     StatusReport{Status: enums.PaymentStatusInitiated, Reference: "r1", Channel: " "},
			outcome:    enums.WebhookOutcomeUnchanged,
			wantFields: map[string]any{},
		},
		{
			name:    "terminal intents are frozen",
			current: enums.PaymentStatusCompleted,
			report:  StatusReport{Status: enums.PaymentStatusFailed, TransactionID: "tx"},
			outcome: enums.WebhookOutcomeIgnoredTerminal,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			intent := &models.PaymentIntent{Status: tc.current, ProviderReference: tc.reference}
			outcome, fields := resolveReport(intent, tc.report)
			assert.Equal(t, tc.outcome, outcome)
			if tc.wantFields == nil {
				assert.Nil(t, fields)
				return
			}
			assert.Equal(t, tc.wantFields, fields)
		})
	}
}

func TestApplyFields(t *testing.T) {
	intent := &models.PaymentIntent{Status: enums.PaymentStatusInitiated}
	applyFields(intent, map[string]any{
		"status":                  enums.PaymentStatusCompleted,
		"provider_transaction_id": "tx-1",
		"provider_channel":        "MPESA-TZ",
	})
	assert.Equal(t, enums.PaymentStatusCompleted, intent.Status)
	require.NotNil(t, intent.ProviderTransactionID)
	assert.Equal(t, "tx-1", *intent.ProviderTransactionID)
	assert.Equal(t, "MPESA-TZ", *intent.ProviderChannel)
	assert.Nil(t, intent.ProviderReference)
}

func TestEmailLocalPart(t *testing.T) {
	assert.Equal(t, "amina", emailLocalPart("amina@example.com"))
	assert.Equal(t, "nobody", emailLocalPart("nobody"))
	assert.Equal(t, "@x", emailLocalPart("@x"))
}
