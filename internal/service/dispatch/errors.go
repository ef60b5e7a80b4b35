package dispatch

import "errors"

// Sentinel errors for the dispatch service layer.
var (
	ErrBatchUnsupported = errors.New("configured provider cannot send batches")
)
