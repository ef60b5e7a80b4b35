package suppression

import (
	"context"
	"log"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/pkg/logger"
)

// Source contributes blocked addresses beyond the membership tables,
// for example an externally maintained suppression list.
type Source interface {
	SuppressedAddresses(ctx context.Context) ([]string, error)
}

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo    Repository
	sources []Source
}

// NewService creates a suppression service backed by the given repository.
// Extra sources are folded into every index build.
func NewService(repo Repository, sources ...Source) *Service {
	return &Service{repo: repo, sources: sources}
}

// Index is a point-in-time snapshot of blocked addresses. Lookups are
// concurrency-safe because the set is never mutated after construction.
type Index struct {
	blocked map[string]struct{}
}

// Blocked reports whether the address may not receive mail. The lookup
// normalizes the address the same way the snapshot did.
func (ix *Index) Blocked(email string) bool {
	_, ok := ix.blocked[domain.NormalizeEmail(email)]
	return ok
}

// Size returns the number of distinct blocked addresses.
func (ix *Index) Size() int { return len(ix.blocked) }

// BuildIndex loads every blocked address into an in-memory snapshot.
// The snapshot is taken once per expansion run, not per recipient.
func (s *Service) BuildIndex(ctx context.Context) (*Index, error) {
	emails, err := s.repo.BlockedEmails(ctx)
	if err != nil {
		return nil, err
	}
	ix := &Index{blocked: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		ix.blocked[domain.NormalizeEmail(e)] = struct{}{}
	}
	for _, src := range s.sources {
		extra, err := src.SuppressedAddresses(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range extra {
			ix.blocked[domain.NormalizeEmail(e)] = struct{}{}
		}
	}
	return ix, nil
}

// BounceSource lists hard-bounced addresses held by the email provider.
// The Mailgun adapter implements this.
type BounceSource interface {
	ListBounces(ctx context.Context, fn func(address, reason string) error) error
}

// SyncStats summarizes a provider bounce sync run.
type SyncStats struct {
	Synced         int `json:"synced"`
	AlreadyBounced int `json:"already_bounced"`
	NotFound       int `json:"not_found"`
}

// SyncProviderBounces walks the provider's bounce suppression list and
// marks the matching memberships as hard-bounced. Addresses with no
// membership at all are counted but left alone. With dryRun set nothing
// is written.
func (s *Service) SyncProviderBounces(ctx context.Context, src BounceSource, dryRun bool) (*SyncStats, error) {
	if src == nil {
		return nil, ErrNoBounceSource
	}

	stats := &SyncStats{}
	err := src.ListBounces(ctx, func(address, reason string) error {
		email := domain.NormalizeEmail(address)
		total, bounced, err := s.repo.AddressStatus(ctx, email)
		if err != nil {
			return err
		}
		switch {
		case total == 0:
			stats.NotFound++
		case bounced == total:
			stats.AlreadyBounced++
		default:
			if !dryRun {
				if _, err := s.repo.MarkAddressBounced(ctx, email, domain.BounceHard, reason); err != nil {
					return err
				}
			}
			log.Printf("[SuppressionSync] Marked %s bounced (dry_run=%v): %s", logger.RedactEmail(email), dryRun, reason)
			stats.Synced++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
