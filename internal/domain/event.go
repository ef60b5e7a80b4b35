package domain

// EventType enumerates the provider webhook events this system reconciles.
type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventFailed       EventType = "failed"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
)

// Severity classifies a failed/bounced event.
type Severity string

const (
	SeverityPermanent Severity = "permanent"
	SeverityTemporary Severity = "temporary"
)

// ProviderEvent is the normalized form of an asynchronous provider
// notification. Events arrive at least once and possibly out of order, so
// every consumer must be idempotent.
type ProviderEvent struct {
	Event     EventType `json:"event"`
	Recipient string    `json:"recipient"`
	MessageID string    `json:"message_id"`
	Severity  Severity  `json:"severity,omitempty"`

	// Delivery status details, populated for bounce/failed events.
	StatusCode    string `json:"status_code,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

// BounceReason formats the delivery-status fields into the stored reason
// text, "[code] message" when a code is present.
func (e ProviderEvent) BounceReason() string {
	msg := e.StatusMessage
	if msg == "" {
		msg = "Unknown error"
	}
	if e.StatusCode == "" {
		return msg
	}
	return "[" + e.StatusCode + "] " + msg
}

// Known reports whether the event type is one this system processes.
// Unrecognized events are acknowledged to the provider and dropped.
func (e ProviderEvent) Known() bool {
	switch e.Event {
	case EventDelivered, EventFailed, EventBounced, EventComplained,
		EventUnsubscribed, EventOpened, EventClicked:
		return true
	}
	return false
}
