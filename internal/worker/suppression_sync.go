package worker

import (
	"context"
	"log"

	"github.com/ignite/audience-mailer/internal/service/suppression"
)

// =============================================================================
// SUPPRESSION SYNC WORKER — Pulls The Provider Bounce List Into The Database
// =============================================================================
// Bounces recorded only on the provider's side (for example suppressions
// created before webhooks were wired up) never reach the local tables. The
// sync job pulls the provider's bounce list and marks the matching member
// rows bounced so expansion stops targeting them.

// SuppressionSync imports provider-side bounces.
type SuppressionSync struct {
	svc    *suppression.Service
	src    suppression.BounceSource
	dryRun bool
}

func NewSuppressionSync(svc *suppression.Service, src suppression.BounceSource, dryRun bool) *SuppressionSync {
	return &SuppressionSync{svc: svc, src: src, dryRun: dryRun}
}

func (j *SuppressionSync) Name() string { return "SuppressionSync" }

func (j *SuppressionSync) Run(ctx context.Context) error {
	stats, err := j.svc.SyncProviderBounces(ctx, j.src, j.dryRun)
	if err != nil {
		return err
	}
	log.Printf("[SuppressionSync] Synced %d, already bounced %d, not found %d (dryRun=%v)",
		stats.Synced, stats.AlreadyBounced, stats.NotFound, j.dryRun)
	return nil
}
