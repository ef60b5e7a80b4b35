package dispatch

import (
	"context"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
)

// Repository defines the data access contract for the dispatcher.
type Repository interface {
	// SweepStale flips queued tasks created before cutoff to skipped
	// with the given reason. Returns rows affected.
	SweepStale(ctx context.Context, cutoff time.Time, reason string) (int64, error)

	// ListQueued returns up to limit queued tasks created at or after
	// since, oldest first.
	ListQueued(ctx context.Context, since time.Time, limit int) ([]domain.DeliveryTask, error)

	// TaskStatus re-reads the current status of one task.
	TaskStatus(ctx context.Context, id string) (domain.TaskStatus, error)

	// MarkSent transitions tasks to sent and records the provider
	// message id. Clears any previous error text.
	MarkSent(ctx context.Context, ids []string, messageID string, at time.Time) error

	// MarkFailed transitions tasks to failed with the error text.
	MarkFailed(ctx context.Context, ids []string, errText string) error

	// StampFirstSend sets sent_at on every membership of the address
	// that does not have one yet. First send only, never overwritten.
	StampFirstSend(ctx context.Context, email string, at time.Time) error

	// RunActive reads the persisted campaign-run flag.
	RunActive(ctx context.Context) (bool, error)

	// SetRunActive writes the persisted campaign-run flag.
	SetRunActive(ctx context.Context, active bool) error

	// DayStats counts sent and failed tasks updated since the given time.
	DayStats(ctx context.Context, since time.Time) (sent, failed int, err error)
}
