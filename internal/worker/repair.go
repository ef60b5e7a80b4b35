package worker

import (
	"context"
	"log"
	"time"

	"github.com/ignite/audience-mailer/internal/provider"
	"github.com/ignite/audience-mailer/internal/service/reconcile"
)

// =============================================================================
// DELIVERY REPAIR WORKER — Reconciles Task State Against Provider Events
// =============================================================================
// Webhooks drop. The repair job replays the provider's delivered-event log
// over the recent window and repairs any task that was marked failed but
// actually reached the recipient.

// DeliveryRepair replays provider delivery events.
type DeliveryRepair struct {
	svc      *reconcile.Service
	src      provider.EventSource
	lookback time.Duration
	dryRun   bool
	now      func() time.Time
}

// NewDeliveryRepair creates the repair job. lookback defaults to 24 hours.
func NewDeliveryRepair(svc *reconcile.Service, src provider.EventSource, lookback time.Duration, dryRun bool) *DeliveryRepair {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &DeliveryRepair{svc: svc, src: src, lookback: lookback, dryRun: dryRun, now: time.Now}
}

func (j *DeliveryRepair) Name() string { return "Repair" }

func (j *DeliveryRepair) Run(ctx context.Context) error {
	stats, err := j.svc.RepairFromProvider(ctx, j.src, j.now().Add(-j.lookback), j.dryRun)
	if err != nil {
		return err
	}
	log.Printf("[Repair] Examined %d events, repaired %d tasks (dryRun=%v)",
		stats.Examined, stats.Repaired, j.dryRun)
	return nil
}
