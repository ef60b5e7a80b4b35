package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/service/expand"
)

// ExpandRepo implements expand.Repository.
type ExpandRepo struct{ db *sql.DB }

// NewExpandRepo creates a Postgres-backed expand repository.
func NewExpandRepo(db *sql.DB) *ExpandRepo { return &ExpandRepo{db: db} }

func (r *ExpandRepo) TemplateByID(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	var t domain.EmailTemplate
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, subject, body, created_at, updated_at
		FROM email_templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, expand.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("template by id: %w", err)
	}
	return &t, nil
}

func (r *ExpandRepo) GroupByID(ctx context.Context, id string) (*domain.AudienceGroup, error) {
	var g domain.AudienceGroup
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM audience_groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, expand.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("group by id: %w", err)
	}
	return &g, nil
}

func (r *ExpandRepo) TargetedAddresses(ctx context.Context, templateID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT recipient FROM delivery_tasks
		WHERE template_id = $1 AND status IN ('queued', 'sent')
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("targeted addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (r *ExpandRepo) ListSendableMembers(ctx context.Context, groupID string, offset, limit int) ([]domain.AudienceMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, name, email
		FROM audience_members
		WHERE group_id = $1 AND is_active = true AND bounced = false
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, groupID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sendable members: %w", err)
	}
	defer rows.Close()

	var out []domain.AudienceMember
	for rows.Next() {
		m := domain.AudienceMember{IsActive: true}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Name, &m.Email); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertTasks bulk-inserts queued tasks with COPY.
func (r *ExpandRepo) InsertTasks(ctx context.Context, tasks []*domain.DeliveryTask) (err error) {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("delivery_tasks",
		"id", "template_id", "group_id", "recipient", "subject", "body",
		"status", "created_at", "updated_at"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, t := range tasks {
		if _, err = stmt.ExecContext(ctx,
			t.ID, t.TemplateID, t.GroupID, t.Recipient, t.Subject, t.Body,
			string(t.Status), t.CreatedAt, t.UpdatedAt); err != nil {
			stmt.Close()
			return fmt.Errorf("copy task row: %w", err)
		}
	}
	if _, err = stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}
	return nil
}
