package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
)

// ReconcileRepo implements reconcile.Repository. Every mutation is a
// conditional update so replayed webhook events affect zero rows.
type ReconcileRepo struct{ db *sql.DB }

// NewReconcileRepo creates a Postgres-backed reconcile repository.
func NewReconcileRepo(db *sql.DB) *ReconcileRepo { return &ReconcileRepo{db: db} }

func (r *ReconcileRepo) FailTask(ctx context.Context, messageID, recipient string, bt domain.BounceType, reason string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET status = 'failed', bounce_type = $3, bounce_reason = $4,
		    bounced_at = $5, updated_at = NOW()
		WHERE provider_message_id = $1 AND LOWER(recipient) = LOWER($2)
		  AND NOT (status = 'failed' AND bounce_type IS NOT NULL)
	`, messageID, recipient, string(bt), reason, at)
	if err != nil {
		return 0, fmt.Errorf("fail task: %w", err)
	}
	return res.RowsAffected()
}

func (r *ReconcileRepo) BounceMembers(ctx context.Context, email string, bt domain.BounceType, reason string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE audience_members
		SET bounced = true, is_active = false, bounce_type = $2,
		    bounce_reason = $3, bounced_at = $4, updated_at = NOW()
		WHERE LOWER(email) = LOWER($1) AND bounced = false
	`, email, string(bt), reason, at)
	if err != nil {
		return 0, fmt.Errorf("bounce members: %w", err)
	}
	return res.RowsAffected()
}

func (r *ReconcileRepo) MarkComplained(ctx context.Context, messageID, recipient string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET complained = true, complained_at = $3, updated_at = NOW()
		WHERE provider_message_id = $1 AND LOWER(recipient) = LOWER($2)
		  AND complained = false
	`, messageID, recipient, at)
	if err != nil {
		return 0, fmt.Errorf("mark complained: %w", err)
	}
	return res.RowsAffected()
}

func (r *ReconcileRepo) DeactivateMembers(ctx context.Context, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE audience_members
		SET is_active = false, updated_at = NOW()
		WHERE LOWER(email) = LOWER($1) AND is_active = true
	`, email)
	if err != nil {
		return 0, fmt.Errorf("deactivate members: %w", err)
	}
	return res.RowsAffected()
}

func (r *ReconcileRepo) RepairDelivered(ctx context.Context, messageID, recipient string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET status = 'sent', bounce_type = NULL, bounce_reason = '',
		    bounced_at = NULL, error = '', updated_at = NOW()
		WHERE provider_message_id = $1 AND LOWER(recipient) = LOWER($2)
		  AND NOT (status = 'sent' AND bounce_type IS NULL)
	`, messageID, recipient)
	if err != nil {
		return 0, fmt.Errorf("repair delivered: %w", err)
	}
	return res.RowsAffected()
}

func (r *ReconcileRepo) MarkOpened(ctx context.Context, messageID, recipient string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET opened = true, opened_at = $3, updated_at = NOW()
		WHERE provider_message_id = $1 AND LOWER(recipient) = LOWER($2)
		  AND opened = false
	`, messageID, recipient, at)
	if err != nil {
		return 0, fmt.Errorf("mark opened: %w", err)
	}
	return res.RowsAffected()
}

func (r *ReconcileRepo) MarkClicked(ctx context.Context, messageID, recipient string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET clicked = true, clicked_at = $3, updated_at = NOW()
		WHERE provider_message_id = $1 AND LOWER(recipient) = LOWER($2)
		  AND clicked = false
	`, messageID, recipient, at)
	if err != nil {
		return 0, fmt.Errorf("mark clicked: %w", err)
	}
	return res.RowsAffected()
}

// MarkOpenedByTaskID is the tracking-pixel variant of MarkOpened: the
// pixel URL carries the task id, not the provider message id.
func (r *ReconcileRepo) MarkOpenedByTaskID(ctx context.Context, taskID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET opened = true, opened_at = $2, updated_at = NOW()
		WHERE id = $1 AND opened = false
	`, taskID, at)
	if err != nil {
		return 0, fmt.Errorf("mark opened by task: %w", err)
	}
	return res.RowsAffected()
}

func (r *ReconcileRepo) FailedTaskExists(ctx context.Context, messageID, recipient string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM delivery_tasks
			WHERE provider_message_id = $1 AND LOWER(recipient) = LOWER($2)
			  AND status = 'failed'
		)
	`, messageID, recipient).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed task exists: %w", err)
	}
	return exists, nil
}
