package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/audience-mailer/internal/domain"
)

// MergeRepo implements merge.Repository.
type MergeRepo struct{ db *sql.DB }

// NewMergeRepo creates a Postgres-backed merge repository.
func NewMergeRepo(db *sql.DB) *MergeRepo { return &MergeRepo{db: db} }

func (r *MergeRepo) GroupExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM audience_groups WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("group exists: %w", err)
	}
	return exists, nil
}

func (r *MergeRepo) MemberEmails(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM audience_members WHERE group_id = $1`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("member emails: %w", err)
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

func (r *MergeRepo) ListMembers(ctx context.Context, groupID string, limit int) ([]domain.AudienceMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, name, email, is_active, bounced
		FROM audience_members
		WHERE group_id = $1
		ORDER BY id
		LIMIT $2
	`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.AudienceMember
	for rows.Next() {
		var m domain.AudienceMember
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Name, &m.Email, &m.IsActive, &m.Bounced); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MergeRepo) MoveMember(ctx context.Context, memberID, targetGroupID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE audience_members SET group_id = $2, updated_at = NOW() WHERE id = $1
	`, memberID, targetGroupID)
	if err != nil {
		return fmt.Errorf("move member: %w", err)
	}
	return nil
}

func (r *MergeRepo) DeleteMember(ctx context.Context, memberID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM audience_members WHERE id = $1`, memberID,
	)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (r *MergeRepo) MemberCount(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audience_members WHERE group_id = $1`, groupID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("member count: %w", err)
	}
	return n, nil
}

func (r *MergeRepo) DeleteGroup(ctx context.Context, groupID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM audience_groups WHERE id = $1`, groupID,
	)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}
