package enums

// WebhookOutcome records what happened to an authenticated webhook delivery.
type WebhookOutcome string

const (
	WebhookOutcomeApplied         WebhookOutcome = "applied"
	WebhookOutcomeUnchanged       WebhookOutcome = "unchanged"
	WebhookOutcomeIgnoredTerminal WebhookOutcome = "ignored_terminal"
	WebhookOutcomeNotFound        WebhookOutcome = "not_found"
	WebhookOutcomeInvalid         WebhookOutcome = "invalid"
)

func (o WebhookOutcome) String() string {
	return string(o)
}
