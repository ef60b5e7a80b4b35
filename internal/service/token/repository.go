package token

import "context"

// Repository defines the data access contract for unsubscribe tokens.
type Repository interface {
	// IssueToken stores candidate as the token for every membership of
	// the address, unless one membership already carries a token, in
	// which case the existing token wins and is propagated. The whole
	// operation runs under a row lock on the address's membership rows.
	// Returns ErrNoMembership when the address has no active membership.
	IssueToken(ctx context.Context, email, candidate string) (string, error)

	// TokenMatches reports whether any active membership of the address
	// carries exactly this token.
	TokenMatches(ctx context.Context, email, token string) (bool, error)

	// DeactivateAddress flips every membership of the address to
	// inactive and clears its token. Returns rows affected.
	DeactivateAddress(ctx context.Context, email string) (int64, error)
}
