// Package apperr defines the service error taxonomy: every failure carries a
// machine-readable code and a retry hint so queue consumers can decide
// between requeue and dead-letter without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	// CodeConfig marks missing or invalid configuration. Never retried.
	CodeConfig Code = "config"
	// CodeNetwork marks connection-level failures (DNS, refused, reset).
	CodeNetwork Code = "network"
	// CodeServer marks upstream 5xx responses.
	CodeServer Code = "server"
	// CodeClient marks upstream 4xx responses. The request was malformed;
	// retrying will not help.
	CodeClient Code = "client"
	// CodeTimeout marks request-timeout aborts, kept distinct from
	// CodeNetwork for observability.
	CodeTimeout Code = "timeout"
	// CodeEmptyContent marks a manifest with zero usable segments after
	// exclusion filtering. The source asset is unusable.
	CodeEmptyContent Code = "empty_content"
	// CodeSegmentStream marks a segment fetch/upload failure that aborts
	// the whole streaming call.
	CodeSegmentStream Code = "segment_stream"
	// CodeDispatch marks a failed task dispatch transaction.
	CodeDispatch Code = "dispatch"
)

type Error struct {
	Code      Code
	Retryable bool
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, retryable bool, message string) *Error {
	return &Error{Code: code, Retryable: retryable, Message: message}
}

func Wrap(code Code, retryable bool, message string, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Message: message, Err: err}
}

func Config(message string) *Error {
	return New(CodeConfig, false, message)
}

func Timeout(message string, err error) *Error {
	return Wrap(CodeTimeout, true, message, err)
}

func Network(message string, err error) *Error {
	return Wrap(CodeNetwork, true, message, err)
}

// FromHTTPStatus classifies a non-2xx response: 5xx is retryable, 4xx is not.
func FromHTTPStatus(status int, message string) *Error {
	if status >= 500 {
		return New(CodeServer, true, fmt.Sprintf("%s: status %d", message, status))
	}
	return New(CodeClient, false, fmt.Sprintf("%s: status %d", message, status))
}

// CodeOf returns the code of the outermost *Error in err's chain, or "" when
// the error is untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the error chain allows a retry. Untyped errors
// default to retryable so transient infrastructure failures get requeued.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}
