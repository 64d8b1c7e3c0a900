package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotParticipant     = "not_participant"
	ErrCodeChatNotFound       = "chat_not_found"
	ErrCodeMessageNotFound    = "message_not_found"
	ErrCodePersistenceFailure = "persistence_failure"
	ErrCodeRateLimited        = "rate_limited"
)

// ErrHubNotRunning is returned by every hub operation before Start or after Shutdown.
var ErrHubNotRunning = errors.New("hub not running")

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func badRequest(msg string) *CoreError {
	return NewError(ErrCodeBadRequest, msg)
}
