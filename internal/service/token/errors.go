package token

import "errors"

// Sentinel errors for the token service layer.
var (
	ErrInvalidToken = errors.New("invalid or expired unsubscribe token")
	ErrNoMembership = errors.New("no active membership for address")
)
