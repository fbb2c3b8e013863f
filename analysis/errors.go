package analysis

import (
	"errors"
	"fmt"

	"github.com/foliolens/foliolens/llm"
)

// FailureClass identifies which taxonomy class a terminal failure belongs
// to. Callers use it to decide whether a retry is sensible; the core never
// retries internally.
type FailureClass string

const (
	// FailValidation is a malformed caller request; no backend call was made.
	FailValidation FailureClass = "request_invalid"

	// FailBackendUnavailable covers authentication, rate-limit, and
	// overload responses from the backend.
	FailBackendUnavailable FailureClass = "backend_unavailable"

	// FailBackend is any other backend error.
	FailBackend FailureClass = "backend_error"

	// FailNonConvergent means the iteration ceiling was reached without a
	// final answer.
	FailNonConvergent FailureClass = "non_convergent"

	// FailUnexpectedState means the backend stopped for a reason the loop
	// does not understand.
	FailUnexpectedState FailureClass = "unexpected_backend_state"

	// FailTruncated means the final text was cut off at the output-token
	// ceiling and could not be parsed.
	FailTruncated FailureClass = "truncated_by_length_limit"

	// FailMalformed means the final text could not be parsed as structured
	// data for reasons other than truncation.
	FailMalformed FailureClass = "malformed_response"

	// FailStructural means the payload parsed but required fields are
	// missing or empty.
	FailStructural FailureClass = "structurally_invalid_response"

	// FailSemantic means the backend reported, as data, that it cannot
	// produce the analysis.
	FailSemantic FailureClass = "backend_reported_failure"
)

// Error is a classified terminal failure.
type Error struct {
	Class   FailureClass
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a classified failure.
func NewError(class FailureClass, message string) *Error {
	return &Error{Class: class, Message: message}
}

// ClassOf returns the failure class of err, or FailBackend when err carries
// no classification.
func ClassOf(err error) FailureClass {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Class
	}
	return FailBackend
}

// classifyBackendError maps a backend client error onto the failure
// taxonomy. Authentication, rate-limit, and overload failures are kept
// distinct from generic backend errors so callers can decide whether a
// retry could help.
func classifyBackendError(err error) *Error {
	var (
		authErr     *llm.AuthenticationError
		deniedErr   *llm.AccessDeniedError
		rateErr     *llm.RateLimitError
		overloadErr *llm.OverloadedError
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &deniedErr):
		return &Error{
			Class:   FailBackendUnavailable,
			Message: "backend rejected credentials; check the configured API key",
			Cause:   err,
		}
	case errors.As(err, &rateErr):
		return &Error{
			Class:   FailBackendUnavailable,
			Message: "backend rate limit exceeded; retry after a pause",
			Cause:   err,
		}
	case errors.As(err, &overloadErr):
		return &Error{
			Class:   FailBackendUnavailable,
			Message: "backend is overloaded; retry after a pause",
			Cause:   err,
		}
	default:
		return &Error{
			Class:   FailBackend,
			Message: "backend request failed",
			Cause:   err,
		}
	}
}
