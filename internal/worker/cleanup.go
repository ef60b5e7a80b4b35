package worker

import (
	"context"
	"log"
	"time"
)

// =============================================================================
// RETENTION CLEANUP — Removes Old Failed & Skipped Delivery Tasks
// =============================================================================
// Failed and skipped tasks accumulate indefinitely without cleanup. Sent
// tasks never expire: they are the dedupe history that stops a template
// from targeting an address twice.
//
// Deletes run in bounded batches to avoid long-running transactions.

// cleanupBatchSize limits each DELETE to avoid table-level locks.
const cleanupBatchSize = 10000

// CleanupStore is the slice of the maintenance repository the cleanup
// job needs.
type CleanupStore interface {
	DeleteOldTasks(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// RetentionCleanup deletes failed and skipped tasks past the retention
// window.
type RetentionCleanup struct {
	store CleanupStore
	days  int
	now   func() time.Time
}

// NewRetentionCleanup creates the cleanup job. days defaults to 7.
func NewRetentionCleanup(store CleanupStore, days int) *RetentionCleanup {
	if days <= 0 {
		days = 7
	}
	return &RetentionCleanup{store: store, days: days, now: time.Now}
}

func (c *RetentionCleanup) Name() string { return "Cleanup" }

func (c *RetentionCleanup) Run(ctx context.Context) error {
	cutoff := c.now().AddDate(0, 0, -c.days)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.store.DeleteOldTasks(ctx, cutoff, cleanupBatchSize)
		if err != nil {
			return err
		}
		total += n
		if n < cleanupBatchSize {
			break
		}
	}
	if total > 0 {
		log.Printf("[Cleanup] Deleted %d failed/skipped tasks older than %d days", total, c.days)
	}
	return nil
}
