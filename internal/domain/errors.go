package domain

import "errors"

// Error kinds every component-level failure resolves to at the orchestration
// boundary. Handlers map these to HTTP status codes; the wrapped message is
// shown to the caller verbatim.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrQuotaExceeded  = errors.New("bot quota exceeded")
	ErrInvalidInput   = errors.New("invalid input")
	ErrProcessControl = errors.New("process control failure")
	ErrCollaborator   = errors.New("collaborator failure")
)
