package enums

// PaymentTrigger identifies which signal caused a status transition.
type PaymentTrigger string

const (
	TriggerCreate  PaymentTrigger = "create"
	TriggerPoll    PaymentTrigger = "poll"
	TriggerWebhook PaymentTrigger = "webhook"
	TriggerExpiry  PaymentTrigger = "expiry"
)

func (t PaymentTrigger) String() string {
	return string(t)
}
