package errors

import stderrors "errors"

// Error is the domain error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Internal message (for logs)
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks. Only the code is compared.
var (
	ErrValidation        = New(CodeValidation, "validation failed")
	ErrNotFound          = New(CodeNotFound, "not found")
	ErrRewardParse       = New(CodeRewardParse, "reward is not a non-negative amount")
	ErrRemote            = New(CodeRemote, "remote collaborator failed")
	ErrInvalidTransition = New(CodeInvalidTransition, "invalid role transition")
	ErrForbidden         = New(CodeForbidden, "forbidden for current role")
	ErrUnauthenticated   = New(CodeUnauthenticated, "no active session")
)

// GetCode extracts the code of the first *Error in err's chain.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HasCode reports whether err's chain carries the given code.
func HasCode(err error, code Code) bool {
	return stderrors.Is(err, &Error{Code: code})
}
