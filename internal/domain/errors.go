package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to test an error against them.
var (
	ErrBadRequest           = errors.New("bad request")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrEngineNotLoaded      = errors.New("engine not loaded")
	ErrEngineFailure        = errors.New("engine failure")
	ErrEngineTimeout        = errors.New("engine timeout")
	ErrEngineBusy           = errors.New("engine busy")
)

// Error carries a kind, a client facing message and an optional cause.
// Msg is safe to return to the caller, Cause is for server logs only.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

// NewError creates an error of the given kind
func NewError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError creates an error of the given kind keeping the original cause
func WrapError(kind error, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Message returns the client facing message of err or def when err carries none
func Message(err error, def string) string {
	var de *Error
	if errors.As(err, &de) && de.Msg != "" {
		return de.Msg
	}
	return def
}
