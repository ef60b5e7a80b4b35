package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ignite/audience-mailer/internal/pkg/logger"
	"github.com/ignite/audience-mailer/internal/provider"
	"github.com/ignite/audience-mailer/internal/repository/postgres"
)

// =============================================================================
// DUPLICATE-SEND WATCHDOG — Detects Repeat Sends Of The Same Message
// =============================================================================
// The dispatcher's at-most-once guard should make duplicate sends
// impossible. The watchdog is the independent check on that claim: it
// scans recent sent tasks for (recipient, subject) pairs above a
// threshold and mails an alert to the admin address when it finds any.

// WatchdogStore is the slice of the maintenance repository the watchdog
// needs.
type WatchdogStore interface {
	FindDuplicateSends(ctx context.Context, since time.Time, threshold int) ([]postgres.DuplicateSend, error)
}

// DuplicateWatchdog alerts on repeat sends.
type DuplicateWatchdog struct {
	store      WatchdogStore
	sender     provider.Sender
	adminEmail string
	fromEmail  string
	threshold  int
	lookback   time.Duration
	now        func() time.Time
}

// NewDuplicateWatchdog creates the watchdog job. threshold defaults to 2
// sends, lookback to one hour.
func NewDuplicateWatchdog(store WatchdogStore, sender provider.Sender, adminEmail, fromEmail string, threshold int, lookback time.Duration) *DuplicateWatchdog {
	if threshold <= 0 {
		threshold = 2
	}
	if lookback <= 0 {
		lookback = time.Hour
	}
	return &DuplicateWatchdog{
		store:      store,
		sender:     sender,
		adminEmail: adminEmail,
		fromEmail:  fromEmail,
		threshold:  threshold,
		lookback:   lookback,
		now:        time.Now,
	}
}

func (w *DuplicateWatchdog) Name() string { return "Watchdog" }

func (w *DuplicateWatchdog) Run(ctx context.Context) error {
	dupes, err := w.store.FindDuplicateSends(ctx, w.now().Add(-w.lookback), w.threshold)
	if err != nil {
		return err
	}
	if len(dupes) == 0 {
		return nil
	}

	for _, d := range dupes {
		log.Printf("[Watchdog] Duplicate send: %s got %q %d times",
			logger.RedactEmail(d.Recipient), d.Subject, d.Count)
	}

	if w.adminEmail == "" {
		log.Printf("[Watchdog] No admin address configured, %d duplicates unreported", len(dupes))
		return nil
	}
	return w.alert(ctx, dupes)
}

func (w *DuplicateWatchdog) alert(ctx context.Context, dupes []postgres.DuplicateSend) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>%d recipient/subject pairs were sent more than %d times in the last %s:</p><ul>",
		len(dupes), w.threshold-1, w.lookback)
	for _, d := range dupes {
		fmt.Fprintf(&b, "<li>%s, %q: %d sends</li>", d.Recipient, d.Subject, d.Count)
	}
	b.WriteString("</ul>")

	res, err := w.sender.Send(ctx, &provider.Envelope{
		To:        w.adminEmail,
		FromName:  "Delivery Watchdog",
		FromEmail: w.fromEmail,
		Subject:   fmt.Sprintf("Duplicate sends detected: %d pairs", len(dupes)),
		HTMLBody:  b.String(),
	})
	if err != nil {
		return fmt.Errorf("send watchdog alert: %w", err)
	}
	if res.Err != nil {
		return fmt.Errorf("watchdog alert rejected: %w", res.Err)
	}
	log.Printf("[Watchdog] Alerted %s about %d duplicate pairs", logger.RedactEmail(w.adminEmail), len(dupes))
	return nil
}
