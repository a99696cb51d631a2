package core

import "errors"

// Error codes for admission failures. They are sent to the peer in REFUSED.
const (
	ErrCodeEmptyAlias = "empty_alias"
	ErrCodeBadAlias   = "bad_alias"
	ErrCodeAliasTaken = "alias_taken"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorCode extracts the CoreError code from err, or "" if there is none.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
