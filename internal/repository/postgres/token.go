package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/audience-mailer/internal/service/token"
)

// TokenRepo implements token.Repository.
type TokenRepo struct{ db *sql.DB }

// NewTokenRepo creates a Postgres-backed token repository.
func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// IssueToken locks the address's active membership rows, reuses an
// existing token if any row carries one, and otherwise stores the
// candidate on all of them. The row lock serializes concurrent issuers.
func (r *TokenRepo) IssueToken(ctx context.Context, email, candidate string) (out string, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin token tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT unsubscribe_token FROM audience_members
		WHERE LOWER(email) = LOWER($1) AND is_active = true
		ORDER BY id
		FOR UPDATE
	`, email)
	if err != nil {
		return "", fmt.Errorf("lock membership rows: %w", err)
	}

	var existing sql.NullString
	locked := 0
	for rows.Next() {
		var tok sql.NullString
		if err := rows.Scan(&tok); err != nil {
			rows.Close()
			return "", err
		}
		locked++
		if tok.Valid && tok.String != "" && !existing.Valid {
			existing = tok
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}
	if locked == 0 {
		return "", token.ErrNoMembership
	}

	tok := candidate
	if existing.Valid {
		tok = existing.String
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE audience_members
		SET unsubscribe_token = $2, updated_at = NOW()
		WHERE LOWER(email) = LOWER($1)
		  AND (unsubscribe_token IS DISTINCT FROM $2)
	`, email, tok); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit token tx: %w", err)
	}
	return tok, nil
}

func (r *TokenRepo) TokenMatches(ctx context.Context, email, tok string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM audience_members
			WHERE LOWER(email) = LOWER($1) AND unsubscribe_token = $2 AND is_active = true
		)
	`, email, tok).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("token match: %w", err)
	}
	return exists, nil
}

func (r *TokenRepo) DeactivateAddress(ctx context.Context, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE audience_members
		SET is_active = false, unsubscribe_token = NULL, updated_at = NOW()
		WHERE LOWER(email) = LOWER($1)
	`, email)
	if err != nil {
		return 0, fmt.Errorf("deactivate address: %w", err)
	}
	return res.RowsAffected()
}
