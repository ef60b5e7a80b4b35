package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrNoBounceSource = errors.New("provider does not expose a bounce list")
)
