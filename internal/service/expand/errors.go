package expand

import "errors"

// Sentinel errors for the expand service layer.
var (
	ErrTemplateNotFound = errors.New("email template not found")
	ErrGroupNotFound    = errors.New("audience group not found")
)
