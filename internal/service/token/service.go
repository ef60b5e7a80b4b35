package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/pkg/logger"
)

// Service implements unsubscribe token issuance and redemption.
type Service struct {
	repo Repository
}

// NewService creates a token service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Issue returns the unsubscribe token for the address, minting one when
// none exists yet. The repository resolves the race between concurrent
// issuers; the winning token is shared across every membership row.
func (s *Service) Issue(ctx context.Context, email string) (string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	candidate, err := newToken()
	if err != nil {
		return "", err
	}
	return s.repo.IssueToken(ctx, email, candidate)
}

// Unsubscribe validates the token and, on match, deactivates every
// membership of the address and clears the stored tokens. An unknown
// address and a wrong token are indistinguishable to the caller.
func (s *Service) Unsubscribe(ctx context.Context, email, tok string) error {
	email = domain.NormalizeEmail(email)
	tok = strings.TrimSpace(tok)
	if email == "" || tok == "" {
		return ErrInvalidToken
	}

	ok, err := s.repo.TokenMatches(ctx, email, tok)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}

	n, err := s.repo.DeactivateAddress(ctx, email)
	if err != nil {
		return err
	}
	log.Printf("[Unsubscribe] Deactivated %d memberships for %s", n, logger.RedactEmail(email))
	return nil
}

// UnsubscribeURL builds the public unsubscribe link for an address.
func UnsubscribeURL(baseURL, email, tok string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", tok)
	return strings.TrimRight(baseURL, "/") + "/unsubscribe?" + q.Encode()
}

// newToken returns 16 random bytes as 32 hex characters.
func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
