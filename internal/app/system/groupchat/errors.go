package groupchat

import "errors"

// Service errors. Callers test with errors.Is; the wrapped text adds context
// for logs only.
var (
	ErrNotFound   = errors.New("group not found")
	ErrForbidden  = errors.New("not a member of this group")
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("already a member")
)
