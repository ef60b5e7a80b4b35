package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/audience-mailer/internal/domain"
)

// DispatchRepo implements dispatch.Repository.
type DispatchRepo struct{ db *sql.DB }

// NewDispatchRepo creates a Postgres-backed dispatch repository.
func NewDispatchRepo(db *sql.DB) *DispatchRepo { return &DispatchRepo{db: db} }

func (r *DispatchRepo) SweepStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET status = 'skipped', error = $2, updated_at = NOW()
		WHERE status = 'queued' AND created_at < $1
	`, cutoff, reason)
	if err != nil {
		return 0, fmt.Errorf("sweep stale: %w", err)
	}
	return res.RowsAffected()
}

func (r *DispatchRepo) ListQueued(ctx context.Context, since time.Time, limit int) ([]domain.DeliveryTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, template_id, group_id, recipient, subject, body, COALESCE(sender, ''), created_at
		FROM delivery_tasks
		WHERE status = 'queued' AND created_at >= $1
		ORDER BY created_at
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryTask
	for rows.Next() {
		t := domain.DeliveryTask{Status: domain.TaskQueued}
		if err := rows.Scan(&t.ID, &t.TemplateID, &t.GroupID, &t.Recipient,
			&t.Subject, &t.Body, &t.Sender, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *DispatchRepo) TaskStatus(ctx context.Context, id string) (domain.TaskStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM delivery_tasks WHERE id = $1`, id,
	).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("task status: %w", err)
	}
	return domain.TaskStatus(status), nil
}

func (r *DispatchRepo) MarkSent(ctx context.Context, ids []string, messageID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET status = 'sent', provider_message_id = $2, error = '', updated_at = $3
		WHERE id = ANY($1)
	`, pq.Array(ids), messageID, at)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (r *DispatchRepo) MarkFailed(ctx context.Context, ids []string, errText string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET status = 'failed', error = $2, updated_at = NOW()
		WHERE id = ANY($1) AND status <> 'sent'
	`, pq.Array(ids), errText)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (r *DispatchRepo) StampFirstSend(ctx context.Context, email string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE audience_members
		SET sent_at = $2, updated_at = NOW()
		WHERE LOWER(email) = LOWER($1) AND sent_at IS NULL
	`, email, at)
	if err != nil {
		return fmt.Errorf("stamp first send: %w", err)
	}
	return nil
}

func (r *DispatchRepo) RunActive(ctx context.Context) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx,
		`SELECT run_active FROM dispatch_state WHERE id = 1`,
	).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read run flag: %w", err)
	}
	return active, nil
}

func (r *DispatchRepo) SetRunActive(ctx context.Context, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_state (id, run_active, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET run_active = $1, updated_at = NOW()
	`, active)
	if err != nil {
		return fmt.Errorf("write run flag: %w", err)
	}
	return nil
}

func (r *DispatchRepo) DayStats(ctx context.Context, since time.Time) (int, int, error) {
	var sent, failed int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM delivery_tasks
		WHERE updated_at >= $1
	`, since).Scan(&sent, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("day stats: %w", err)
	}
	return sent, failed, nil
}
