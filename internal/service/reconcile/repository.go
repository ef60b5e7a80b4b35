package reconcile

import (
	"context"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
)

// Repository defines the data access contract for event reconciliation.
// Every mutation is a conditional update and returns rows affected so
// duplicate events degrade to zero-row no-ops.
type Repository interface {
	// FailTask flips the task matching (messageID, recipient) to failed
	// and records the bounce classification. Tasks already failed with
	// the same bounce are untouched.
	FailTask(ctx context.Context, messageID, recipient string, bt domain.BounceType, reason string, at time.Time) (int64, error)

	// BounceMembers flags every membership of the address as bounced and
	// inactive.
	BounceMembers(ctx context.Context, email string, bt domain.BounceType, reason string, at time.Time) (int64, error)

	// MarkComplained sets the complaint flag on the matching task, first
	// occurrence only.
	MarkComplained(ctx context.Context, messageID, recipient string, at time.Time) (int64, error)

	// DeactivateMembers flips every membership of the address to
	// inactive without touching bounce fields.
	DeactivateMembers(ctx context.Context, email string) (int64, error)

	// RepairDelivered flips the matching task to sent and clears bounce
	// fields, for tasks not already in a clean sent state.
	RepairDelivered(ctx context.Context, messageID, recipient string, at time.Time) (int64, error)

	// MarkOpened sets opened on the matching task, first occurrence only.
	MarkOpened(ctx context.Context, messageID, recipient string, at time.Time) (int64, error)

	// MarkClicked sets clicked on the matching task, first occurrence only.
	MarkClicked(ctx context.Context, messageID, recipient string, at time.Time) (int64, error)

	// FailedTaskExists reports whether a failed task matches
	// (messageID, recipient). Used by the repair sweep's dry run.
	FailedTaskExists(ctx context.Context, messageID, recipient string) (bool, error)
}
