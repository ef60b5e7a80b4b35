// Package notify delivers operational mail to the admin address: campaign
// run completions and expansion summaries. It plugs into the services
// through their CompletionNotifier capabilities so the services never see
// a provider directly.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/audience-mailer/internal/provider"
	"github.com/ignite/audience-mailer/internal/service/expand"
)

// AdminMailer emails run summaries to a fixed admin address. A failure to
// deliver a summary is logged and swallowed: notification mail must never
// fail the run it reports on.
type AdminMailer struct {
	sender     provider.Sender
	adminEmail string
	fromEmail  string
	now        func() time.Time
}

func NewAdminMailer(sender provider.Sender, adminEmail, fromEmail string) *AdminMailer {
	return &AdminMailer{
		sender:     sender,
		adminEmail: adminEmail,
		fromEmail:  fromEmail,
		now:        time.Now,
	}
}

// RunCompleted reports a drained dispatch run with the day's totals.
func (m *AdminMailer) RunCompleted(ctx context.Context, sent, failed int) {
	day := m.now().Format("2006-01-02")
	m.send(ctx,
		fmt.Sprintf("Campaign run finished: %d sent, %d failed", sent, failed),
		fmt.Sprintf("<p>The delivery queue drained on %s.</p><p>Sent today: %d<br>Failed today: %d</p>", day, sent, failed))
}

// ExpansionFinished reports the outcome of one audience expansion.
func (m *AdminMailer) ExpansionFinished(ctx context.Context, groupID, templateID string, stats expand.Stats) {
	m.send(ctx,
		fmt.Sprintf("Audience expansion queued %d recipients", stats.Queued),
		fmt.Sprintf("<p>Template %s was expanded against group %s.</p><p>Queued: %d<br>Already sent: %d<br>Domain skipped: %d<br>Suppressed: %d</p>",
			templateID, groupID, stats.Queued, stats.AlreadySent, stats.DomainSkipped, stats.Blocked))
}

func (m *AdminMailer) send(ctx context.Context, subject, body string) {
	if m.adminEmail == "" {
		return
	}
	res, err := m.sender.Send(ctx, &provider.Envelope{
		To:        m.adminEmail,
		FromName:  "Mailer",
		FromEmail: m.fromEmail,
		Subject:   subject,
		HTMLBody:  body,
	})
	if err != nil {
		log.Printf("[Notify] Admin mail %q not delivered: %v", subject, err)
		return
	}
	if res.Err != nil {
		log.Printf("[Notify] Admin mail %q rejected: %v", subject, res.Err)
	}
}
