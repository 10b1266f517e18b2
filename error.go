package osmhttp

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Code is an error code that mirrors the http status codes. It can be used to create errors to pass around across
// layers to handle errors structurally.
type Code int

const (
	CodeUnknown               Code = 0
	CodeBadRequest            Code = http.StatusBadRequest            // RFC 9110, 15.5.1
	CodeUnauthorized          Code = http.StatusUnauthorized          // RFC 9110, 15.5.2
	CodeForbidden             Code = http.StatusForbidden             // RFC 9110, 15.5.4
	CodeNotFound              Code = http.StatusNotFound              // RFC 9110, 15.5.5
	CodeMethodNotAllowed      Code = http.StatusMethodNotAllowed      // RFC 9110, 15.5.6
	CodeNotAcceptable         Code = http.StatusNotAcceptable         // RFC 9110, 15.5.7
	CodeConflict              Code = http.StatusConflict              // RFC 9110, 15.5.10
	CodeGone                  Code = http.StatusGone                  // RFC 9110, 15.5.11
	CodePreconditionFailed    Code = http.StatusPreconditionFailed    // RFC 9110, 15.5.13
	CodeRequestEntityTooLarge Code = http.StatusRequestEntityTooLarge // RFC 9110, 15.5.14
	CodeUnsupportedMediaType  Code = http.StatusUnsupportedMediaType  // RFC 9110, 15.5.16
	CodeTooManyRequests       Code = http.StatusTooManyRequests       // RFC 6585, 4

	CodeInternalServerError Code = http.StatusInternalServerError // RFC 9110, 15.6.1
	CodeNotImplemented      Code = http.StatusNotImplemented      // RFC 9110, 15.6.2
	CodeServiceUnavailable  Code = http.StatusServiceUnavailable  // RFC 9110, 15.6.4

	// CodeBandwidthLimitExceeded is the non-standard status older API clients expect when throttled.
	CodeBandwidthLimitExceeded Code = 509
)

// Text returns the reason phrase for the code.
func (c Code) Text() string {
	if c == CodeBandwidthLimitExceeded {
		return "Bandwidth Limit Exceeded"
	}

	status := http.StatusText(int(c))
	if status == "" {
		status = "Unknown"
	}

	return status
}

// Error describes an http error.
type Error struct {
	code       Code
	err        error
	retryAfter int
}

// NewError inits a new error given the error code.
func NewError(c Code, underlying error) *Error {
	return &Error{code: c, err: underlying}
}

// NewErrorf inits a new error with a formatted message.
func NewErrorf(c Code, format string, args ...any) *Error {
	return NewError(c, errors.Newf(format, args...))
}

// NewRetryableError inits an error that tells the client to come back after the given number of seconds.
func NewRetryableError(c Code, underlying error, retryAfter int) *Error {
	return &Error{code: c, err: underlying, retryAfter: retryAfter}
}

func (e *Error) Code() Code      { return e.code }
func (e *Error) Unwrap() error   { return e.err }
func (e *Error) RetryAfter() int { return e.retryAfter }

// Message is the client facing message, without the status prefix.
func (e *Error) Message() string { return e.err.Error() }

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.code.Text(), e.err.Error())
}

// CodeOf returns the error's status code if it is or wraps an [*Error] and
// [CodeUnknown] otherwise.
func CodeOf(err error) Code {
	if herr, ok := AsError(err); ok {
		return herr.Code()
	}
	return CodeUnknown
}

// AsError uses errors.As to unwrap any error and look for an *Error.
func AsError(err error) (*Error, bool) {
	var herr *Error
	ok := errors.As(err, &herr)
	return herr, ok
}
