// Package worker contains the scheduled background jobs: dispatch runs,
// retention cleanup, the duplicate-send watchdog, the delivered-events
// repair sweep, and the provider bounce-list sync.
//
// Jobs are driven by the cron scheduler in cmd/worker. Each job runs
// under a distributed lock so multiple worker hosts never double-run the
// same sweep; correctness never depends on the lock, only efficiency.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/ignite/audience-mailer/internal/pkg/distlock"
)

// Job is one schedulable unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// RunLocked executes the job if the lock can be taken, and silently
// yields when another host holds it.
func RunLocked(ctx context.Context, lock distlock.DistLock, job Job, timeout time.Duration) {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[%s] Lock error: %v", job.Name(), err)
		return
	}
	if !ok {
		log.Printf("[%s] Another worker holds the lock, skipping", job.Name())
		return
	}
	defer lock.Release(context.WithoutCancel(ctx))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("[%s] Run failed after %s: %v", job.Name(), time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[%s] Run finished in %s", job.Name(), time.Since(start).Round(time.Millisecond))
}
