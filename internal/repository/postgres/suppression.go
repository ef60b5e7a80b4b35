// Package postgres implements the service repository interfaces against
// PostgreSQL via database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/audience-mailer/internal/domain"
)

// SuppressionRepo implements suppression.Repository.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) BlockedEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT email FROM audience_members
		WHERE bounced = true OR is_active = false
	`)
	if err != nil {
		return nil, fmt.Errorf("blocked emails: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (r *SuppressionRepo) AddressStatus(ctx context.Context, email string) (int, int, error) {
	var total, bounced int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE bounced = true)
		FROM audience_members
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&total, &bounced)
	if err != nil {
		return 0, 0, fmt.Errorf("address status: %w", err)
	}
	return total, bounced, nil
}

func (r *SuppressionRepo) MarkAddressBounced(ctx context.Context, email string, bt domain.BounceType, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE audience_members
		SET bounced = true, is_active = false, bounce_type = $2,
		    bounce_reason = $3, bounced_at = NOW(), updated_at = NOW()
		WHERE LOWER(email) = LOWER($1) AND bounced = false
	`, email, string(bt), reason)
	if err != nil {
		return 0, fmt.Errorf("mark address bounced: %w", err)
	}
	return res.RowsAffected()
}
