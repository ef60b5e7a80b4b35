package provider

import (
	"context"
	"log"
	"time"

	gomail "gopkg.in/gomail.v2"
)

// SMTP relays mail through a plain SMTP server. Single-send only; batch
// dispatch requires an API-level provider.
type SMTP struct {
	host     string
	port     int
	username string
	password string
	send     func(m *gomail.Message) error
}

// NewSMTP creates an SMTP adapter for the given relay.
func NewSMTP(host string, port int, username, password string) *SMTP {
	if port == 0 {
		port = 587
	}
	s := &SMTP{host: host, port: port, username: username, password: password}
	dialer := gomail.NewDialer(host, port, username, password)
	s.send = func(m *gomail.Message) error { return dialer.DialAndSend(m) }
	return s
}

// Name implements Sender.
func (s *SMTP) Name() string { return "smtp" }

// Send delivers a single email through the SMTP relay. SMTP has no
// message identifiers, so MessageID is left empty.
func (s *SMTP) Send(ctx context.Context, env *Envelope) (*SendResult, error) {
	if s.host == "" {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", FormatFrom(env.FromName, env.FromEmail))
	m.SetHeader("To", env.To)
	m.SetHeader("Subject", env.Subject)
	if env.ReplyTo != "" {
		m.SetHeader("Reply-To", env.ReplyTo)
	}
	m.SetBody("text/html", env.HTMLBody)
	if env.TextBody != "" {
		m.AddAlternative("text/plain", env.TextBody)
	}

	if err := s.send(m); err != nil {
		// SMTP gives no rejection/transport distinction; treat every
		// failure as retryable transport error
		return nil, err
	}

	log.Printf("[SMTP] Sent to %s via %s:%d", env.To, s.host, s.port)
	return &SendResult{Accepted: true, SentAt: time.Now()}, nil
}
