package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/audience-mailer/internal/domain"
)

// AdminRepo backs the admin HTTP API: group and template management
// plus delivery stats.
type AdminRepo struct{ db *sql.DB }

// NewAdminRepo creates a Postgres-backed admin repository.
func NewAdminRepo(db *sql.DB) *AdminRepo { return &AdminRepo{db: db} }

func (r *AdminRepo) CreateGroup(ctx context.Context, name string) (*domain.AudienceGroup, error) {
	g := &domain.AudienceGroup{ID: uuid.NewString(), Name: name}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audience_groups (id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING created_at, updated_at
	`, g.ID, g.Name).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// GroupSummary is a group with its member headcount.
type GroupSummary struct {
	domain.AudienceGroup
	MemberCount int `json:"member_count"`
	ActiveCount int `json:"active_count"`
}

func (r *AdminRepo) ListGroups(ctx context.Context) ([]GroupSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.created_at, g.updated_at,
		       COUNT(m.id), COUNT(m.id) FILTER (WHERE m.is_active AND NOT m.bounced)
		FROM audience_groups g
		LEFT JOIN audience_members m ON m.group_id = g.id
		GROUP BY g.id
		ORDER BY g.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []GroupSummary
	for rows.Next() {
		var g GroupSummary
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt, &g.MemberCount, &g.ActiveCount); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// InsertMembers bulk-adds members to a group, skipping addresses the
// group already has.
func (r *AdminRepo) InsertMembers(ctx context.Context, groupID string, members []domain.AudienceMember) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}

	ids := make([]string, len(members))
	names := make([]string, len(members))
	emails := make([]string, len(members))
	for i := range members {
		ids[i] = uuid.NewString()
		names[i] = members[i].Name
		emails[i] = domain.NormalizeEmail(members[i].Email)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audience_members (id, group_id, name, email, is_active, bounced, created_at, updated_at)
		SELECT u.id, $1, u.name, u.email, true, false, NOW(), NOW()
		FROM UNNEST($2::text[], $3::text[], $4::text[]) AS u(id, name, email)
		WHERE NOT EXISTS (
			SELECT 1 FROM audience_members m
			WHERE m.group_id = $1 AND m.email = u.email
		)
	`, groupID, pq.Array(ids), pq.Array(names), pq.Array(emails))
	if err != nil {
		return 0, fmt.Errorf("insert members: %w", err)
	}
	return res.RowsAffected()
}

func (r *AdminRepo) CreateTemplate(ctx context.Context, name, subject, body string) (*domain.EmailTemplate, error) {
	t := &domain.EmailTemplate{ID: uuid.NewString(), Name: name, Subject: subject, Body: body}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO email_templates (id, name, subject, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`, t.ID, t.Name, t.Subject, t.Body).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

func (r *AdminRepo) ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, subject, body, created_at, updated_at
		FROM email_templates ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailTemplate
	for rows.Next() {
		var t domain.EmailTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeliveryStats aggregates task outcomes since a point in time.
type DeliveryStats struct {
	Queued  int `json:"queued"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Opened  int `json:"opened"`
	Clicked int `json:"clicked"`
}

func (r *AdminRepo) Stats(ctx context.Context, since time.Time) (*DeliveryStats, error) {
	var s DeliveryStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'queued'),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'skipped'),
		       COUNT(*) FILTER (WHERE opened),
		       COUNT(*) FILTER (WHERE clicked)
		FROM delivery_tasks
		WHERE created_at >= $1
	`, since).Scan(&s.Queued, &s.Sent, &s.Failed, &s.Skipped, &s.Opened, &s.Clicked)
	if err != nil {
		return nil, fmt.Errorf("delivery stats: %w", err)
	}
	return &s, nil
}
