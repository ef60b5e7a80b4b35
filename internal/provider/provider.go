// Package provider contains the email provider adapters.
//
// Adapters are split into individual files:
//   - mailgun.go: Mailgun Messages API (batch-capable, webhooks, bounce list)
//   - smtp.go:    plain SMTP relay via gomail
//   - ses.go:     AWS SES v2
//
// All adapters implement Sender. Adapters that can deliver a templated
// message to many recipients in one API call additionally implement
// BatchSender. Callers must check for the capability before using batch
// dispatch.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
)

// ErrNotConfigured is returned when an adapter is missing credentials.
var ErrNotConfigured = errors.New("provider not configured")

// Envelope is a fully rendered message ready for handoff to a provider.
// Body and Subject are final copies; adapters never re-render templates.
type Envelope struct {
	TaskID    string
	To        string
	FromName  string
	FromEmail string
	ReplyTo   string
	Subject   string
	HTMLBody  string
	TextBody  string
	// Vars are per-recipient substitution values for batch sends
	// (e.g. unsubscribe_url). Ignored by single-send adapters, which
	// receive pre-substituted bodies.
	Vars map[string]string
}

// SendResult reports the outcome of a single-recipient send.
type SendResult struct {
	Accepted  bool
	MessageID string
	SentAt    time.Time
	// Err is set when the provider rejected the message. A rejection is
	// a definitive answer from the provider; transport failures are
	// returned as the Send error instead so the caller can retry.
	Err error
}

// BatchResult holds aggregate results from a batch send.
type BatchResult struct {
	MessageID string
	Accepted  int
	Rejected  int
	Err       error
}

// Sender delivers one rendered message to one recipient.
//
// The error return signals a transport-level failure (network, timeout,
// provider 5xx) that the caller may retry. A non-nil SendResult.Err with
// a nil error means the provider answered and refused the message.
type Sender interface {
	Name() string
	Send(ctx context.Context, env *Envelope) (*SendResult, error)
}

// BatchSender extends Sender for adapters that support multi-recipient
// sends in a single API call. Only Mailgun implements this.
type BatchSender interface {
	Sender
	SendBatch(ctx context.Context, envs []*Envelope) (*BatchResult, error)
	MaxBatchSize() int
}

// EventSource extends Sender for adapters whose delivery and bounce
// history can be queried after the fact. Used by the status repair and
// suppression sync jobs.
type EventSource interface {
	DeliveredEvents(ctx context.Context, since time.Time, fn func(ev domain.ProviderEvent) error) error
	ListBounces(ctx context.Context, fn func(address, reason string) error) error
}

// FormatFrom renders a display-name sender address.
func FormatFrom(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
