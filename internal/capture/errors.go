package capture

import (
	"errors"
	"fmt"
)

// Error codes for capture operations.
const (
	ErrCodeInvalidParams = "INVALID_PARAMS"
	ErrCodeStreaming     = "STREAMING"
	ErrCodeNotStreaming  = "NOT_STREAMING"
	ErrCodeBusy          = "BUSY"
	ErrCodeInterrupted   = "INTERRUPTED"
	ErrCodeClosed        = "CLOSED"
	ErrCodeTransport     = "TRANSPORT"
	ErrCodeSourceEnded   = "SOURCE_ENDED"
	ErrCodeInvalidSlot   = "INVALID_SLOT"
	ErrCodeInternal      = "INTERNAL"
)

// Sentinel causes. Coded errors wrap exactly one of these, so callers can
// use errors.Is without knowing the codes.
var (
	ErrInvalidParams = errors.New("invalid stream parameters")
	ErrStreaming     = errors.New("stream is running")
	ErrNotStreaming  = errors.New("stream is not running")
	ErrBusy          = errors.New("another consumer is pulling a frame")
	ErrInterrupted   = errors.New("wait interrupted")
	ErrStreamClosed  = errors.New("stream closed")
	ErrTransport     = errors.New("transport error")
	ErrSourceEnded   = errors.New("transfer source ended")
	ErrInvalidSlot   = errors.New("invalid output slot")
	ErrInternal      = errors.New("internal capture error")
)

// Error represents a capture error with a code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Code extracts the code of a capture error, or "" for other errors.
func Code(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
