package merge

import "errors"

// Sentinel errors for the merge service layer.
var (
	ErrGroupNotFound   = errors.New("audience group not found")
	ErrTargetInSources = errors.New("target group cannot be one of the sources")
	ErrNoSources       = errors.New("no source groups given")
)
