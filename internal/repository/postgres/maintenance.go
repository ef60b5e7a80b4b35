package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MaintenanceRepo backs the retention cleanup and the duplicate-send
// watchdog.
type MaintenanceRepo struct{ db *sql.DB }

// NewMaintenanceRepo creates a Postgres-backed maintenance repository.
func NewMaintenanceRepo(db *sql.DB) *MaintenanceRepo { return &MaintenanceRepo{db: db} }

// DeleteOldTasks removes up to limit failed or skipped tasks older than
// cutoff. Sent tasks are never deleted. Returns rows removed so callers
// can loop until the batch comes back short.
func (r *MaintenanceRepo) DeleteOldTasks(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM delivery_tasks
		WHERE id IN (
			SELECT id FROM delivery_tasks
			WHERE status IN ('failed', 'skipped') AND created_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete old tasks: %w", err)
	}
	return res.RowsAffected()
}

// DuplicateSend is one (recipient, subject) pair sent more than the
// watchdog threshold allows.
type DuplicateSend struct {
	Recipient     string `json:"recipient"`
	Subject       string `json:"subject"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Count         int    `json:"count"`
}

// FindDuplicateSends groups sent tasks since the given time and returns
// the pairs that hit the threshold.
func (r *MaintenanceRepo) FindDuplicateSends(ctx context.Context, since time.Time, threshold int) ([]DuplicateSend, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT recipient, subject, COALESCE(reference_type, ''), COALESCE(reference_id, ''), COUNT(*)
		FROM delivery_tasks
		WHERE status = 'sent' AND updated_at >= $1
		GROUP BY recipient, subject, reference_type, reference_id
		HAVING COUNT(*) >= $2
		ORDER BY COUNT(*) DESC
	`, since, threshold)
	if err != nil {
		return nil, fmt.Errorf("find duplicate sends: %w", err)
	}
	defer rows.Close()

	var out []DuplicateSend
	for rows.Next() {
		var d DuplicateSend
		if err := rows.Scan(&d.Recipient, &d.Subject, &d.ReferenceType, &d.ReferenceID, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
