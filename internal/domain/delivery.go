package domain

import "time"

// TaskStatus enumerates the lifecycle states of a delivery task.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskSent    TaskStatus = "sent"
	TaskFailed  TaskStatus = "failed"
	TaskSkipped TaskStatus = "skipped"
)

// DeliveryTask is one attempted or pending send to one recipient.
//
// Invariant: for a (template, recipient) pair at most one row may ever reach
// TaskSent, and the expansion dedupe treats queued rows as already targeted
// so the pair is never double-queued.
type DeliveryTask struct {
	ID         string  `json:"id" db:"id"`
	TemplateID *string `json:"template_id,omitempty" db:"template_id"`
	GroupID    *string `json:"group_id,omitempty" db:"group_id"`

	// ReferenceType/ReferenceID link non-template sends (transactional,
	// watchdog alerts) back to whatever triggered them.
	ReferenceType *string `json:"reference_type,omitempty" db:"reference_type"`
	ReferenceID   *string `json:"reference_id,omitempty" db:"reference_id"`

	Recipient string     `json:"recipient" db:"recipient"`
	Subject   string     `json:"subject" db:"subject"`
	Body      string     `json:"body" db:"body"`
	Sender    string     `json:"sender" db:"sender"`
	Status    TaskStatus `json:"status" db:"status"`
	Error     string     `json:"error,omitempty" db:"error"`

	// ProviderMessageID is nil until the provider accepts the message.
	ProviderMessageID *string `json:"provider_message_id,omitempty" db:"provider_message_id"`

	Opened       bool        `json:"opened" db:"opened"`
	OpenedAt     *time.Time  `json:"opened_at,omitempty" db:"opened_at"`
	Clicked      bool        `json:"clicked" db:"clicked"`
	ClickedAt    *time.Time  `json:"clicked_at,omitempty" db:"clicked_at"`
	BounceType   *BounceType `json:"bounce_type,omitempty" db:"bounce_type"`
	BounceReason string      `json:"bounce_reason,omitempty" db:"bounce_reason"`
	BouncedAt    *time.Time  `json:"bounced_at,omitempty" db:"bounced_at"`
	Complained   bool        `json:"complained" db:"complained"`
	ComplainedAt *time.Time  `json:"complained_at,omitempty" db:"complained_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminalFailure reports whether the task has permanently failed
// (failed or swept aside as too old).
func (t *DeliveryTask) IsTerminalFailure() bool {
	return t.Status == TaskFailed || t.Status == TaskSkipped
}
