package output

import (
	"errors"
	"fmt"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code, so sentinel-style checks work:
//
//	errors.Is(err, &output.Error{Code: output.CodeLoginFailed})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

// Error constructors for common cases.

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrNotFound(resource, identifier string) *Error {
	return &Error{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, identifier),
		HTTPStatus: 404,
	}
}

func ErrAuth(msg string) *Error {
	return &Error{
		Code:    CodeAuth,
		Message: msg,
		Hint:    "Run: rocketctl auth login",
	}
}

func ErrMissingCredentials() *Error {
	return &Error{
		Code:    CodeMissingCredentials,
		Message: "Rocket.net credentials not configured",
		Hint:    "Run: rocketctl config credentials",
	}
}

func ErrLoginFailed(msg string, cause error) *Error {
	return &Error{
		Code:    CodeLoginFailed,
		Message: msg,
		Cause:   cause,
	}
}

func ErrMissingMaterial() *Error {
	return &Error{
		Code:    CodeMissingMaterial,
		Message: "No stored token material",
	}
}

func ErrCipherAuth(cause error) *Error {
	return &Error{
		Code:    CodeCipherAuth,
		Message: "Stored token failed verification",
		Cause:   cause,
	}
}

func ErrCipherFailure(msg string, cause error) *Error {
	return &Error{
		Code:    CodeCipherFailure,
		Message: msg,
		Cause:   cause,
	}
}

func ErrNetwork(cause error) *Error {
	return &Error{
		Code:      CodeNetwork,
		Message:   "Network error",
		Hint:      cause.Error(),
		Retryable: true,
		Cause:     cause,
	}
}

func ErrAPI(status int, msg string) *Error {
	return &Error{
		Code:       CodeAPI,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  status >= 500,
	}
}

func ErrParse(cause error) *Error {
	return &Error{
		Code:    CodeParse,
		Message: "Invalid JSON response",
		Cause:   cause,
	}
}

func ErrInvalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

func ErrInvalidResponse(msg string) *Error {
	return &Error{Code: CodeInvalidResponse, Message: msg}
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
