package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/pkg/logger"
)

// Service applies provider events. Safe for concurrent use.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a reconcile service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Apply routes one provider event to its transition. Unknown event types
// and events with no matching rows are silent no-ops.
func (s *Service) Apply(ctx context.Context, ev domain.ProviderEvent) error {
	recipient := domain.NormalizeEmail(ev.Recipient)
	now := s.now()

	switch ev.Event {
	case domain.EventBounced, domain.EventFailed:
		if ev.Severity != domain.SeverityPermanent {
			// soft bounces are left to the provider's own retries
			return nil
		}
		reason := ev.BounceReason()
		n, err := s.repo.FailTask(ctx, ev.MessageID, recipient, domain.BounceHard, reason, now)
		if err != nil {
			return fmt.Errorf("fail task: %w", err)
		}
		m, err := s.repo.BounceMembers(ctx, recipient, domain.BounceHard, reason, now)
		if err != nil {
			return fmt.Errorf("bounce members: %w", err)
		}
		if n > 0 || m > 0 {
			log.Printf("[Reconcile] Hard bounce for %s: task_rows=%d member_rows=%d",
				logger.RedactEmail(recipient), n, m)
		}

	case domain.EventComplained:
		if _, err := s.repo.MarkComplained(ctx, ev.MessageID, recipient, now); err != nil {
			return fmt.Errorf("mark complained: %w", err)
		}
		// complaint deactivates but does not count as a bounce
		if _, err := s.repo.DeactivateMembers(ctx, recipient); err != nil {
			return fmt.Errorf("deactivate members: %w", err)
		}
		log.Printf("[Reconcile] Complaint from %s", logger.RedactEmail(recipient))

	case domain.EventUnsubscribed:
		n, err := s.repo.DeactivateMembers(ctx, recipient)
		if err != nil {
			return fmt.Errorf("deactivate members: %w", err)
		}
		if n > 0 {
			log.Printf("[Reconcile] Provider unsubscribe for %s (%d memberships)",
				logger.RedactEmail(recipient), n)
		}

	case domain.EventDelivered:
		n, err := s.repo.RepairDelivered(ctx, ev.MessageID, recipient, now)
		if err != nil {
			return fmt.Errorf("repair delivered: %w", err)
		}
		if n > 0 {
			log.Printf("[Reconcile] Delivered event repaired task for %s", logger.RedactEmail(recipient))
		}

	case domain.EventOpened:
		if _, err := s.repo.MarkOpened(ctx, ev.MessageID, recipient, now); err != nil {
			return fmt.Errorf("mark opened: %w", err)
		}

	case domain.EventClicked:
		if _, err := s.repo.MarkClicked(ctx, ev.MessageID, recipient, now); err != nil {
			return fmt.Errorf("mark clicked: %w", err)
		}
	}

	return nil
}

// EventSource lists delivered events held by the provider. The Mailgun
// adapter implements this.
type EventSource interface {
	DeliveredEvents(ctx context.Context, since time.Time, fn func(ev domain.ProviderEvent) error) error
}

// RepairStats summarizes a delivered-events repair sweep.
type RepairStats struct {
	Examined int `json:"examined"`
	Repaired int `json:"repaired"`
}

// RepairFromProvider walks the provider's delivered-events history since
// the given time and flips matching tasks stuck in failed back to sent.
// With dryRun set, candidates are counted but not written.
func (s *Service) RepairFromProvider(ctx context.Context, src EventSource, since time.Time, dryRun bool) (*RepairStats, error) {
	if src == nil {
		return nil, ErrNoEventSource
	}

	stats := &RepairStats{}
	err := src.DeliveredEvents(ctx, since, func(ev domain.ProviderEvent) error {
		stats.Examined++
		recipient := domain.NormalizeEmail(ev.Recipient)

		if dryRun {
			stuck, err := s.repo.FailedTaskExists(ctx, ev.MessageID, recipient)
			if err != nil {
				return err
			}
			if stuck {
				stats.Repaired++
				log.Printf("[Repair] Would repair failed task for %s (id: %s)",
					logger.RedactEmail(recipient), ev.MessageID)
			}
			return nil
		}

		stuck, err := s.repo.FailedTaskExists(ctx, ev.MessageID, recipient)
		if err != nil {
			return err
		}
		if !stuck {
			return nil
		}
		if _, err := s.repo.RepairDelivered(ctx, ev.MessageID, recipient, s.now()); err != nil {
			return err
		}
		stats.Repaired++
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Repair] Examined %d delivered events, repaired %d (dry_run=%v)",
		stats.Examined, stats.Repaired, dryRun)
	return stats, nil
}
