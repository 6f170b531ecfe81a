package service

import (
	"fmt"

	"github.com/pagopa/interop-platform-state/internal/validation"
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	StatusCode int
	Wrapped    error
}

func (e HTTPError) Error() string {
	return e.Wrapped.Error()
}

func (e HTTPError) Unwrap() error {
	return e.Wrapped
}

func httpError(statusCode int, err error) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Wrapped:    err,
	}
}

// AssertionError is returned when a client assertion did not pass validation.
// Result holds the full step trail.
type AssertionError struct {
	Result *validation.Result
}

func (e *AssertionError) Error() string {
	step := e.Result.FirstFailed()
	if step == nil {
		return "client assertion rejected"
	}
	if len(step.Failures) == 0 {
		return fmt.Sprintf("client assertion rejected at %s", step.Name)
	}
	return fmt.Sprintf("client assertion rejected at %s: %s", step.Name, step.Failures[0].Message)
}
