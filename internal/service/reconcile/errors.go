package reconcile

import "errors"

// Sentinel errors for the reconcile service layer.
var (
	ErrNoEventSource = errors.New("provider does not expose delivery events")
)
