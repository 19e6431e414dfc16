package fetch

import (
	"errors"
	"fmt"
)

// Cause classifies why a request failed.
type Cause string

const (
	CauseTimeout   Cause = "timeout"
	CauseHTTP      Cause = "http"
	CauseMalformed Cause = "malformed"
	CauseExhausted Cause = "exhausted"
)

// Sentinels for errors.Is. An exhausted error also matches the cause of its
// last attempt.
var (
	ErrTimeout   = errors.New("request timed out")
	ErrHTTP      = errors.New("upstream request failed")
	ErrMalformed = errors.New("malformed upstream payload")
	ErrExhausted = errors.New("request retries exhausted")
)

type RequestError struct {
	Cause    Cause
	Resource string
	// Status is the HTTP status when the upstream answered, 0 otherwise.
	Status   int
	Attempts int
	// Err is the underlying failure; for CauseExhausted it is the last
	// attempt's *RequestError.
	Err error
}

func (e *RequestError) Error() string {
	switch {
	case e.Cause == CauseExhausted:
		return fmt.Sprintf("fetch %s: gave up after %d attempts: %v", e.Resource, e.Attempts, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.Resource, e.Cause, e.Status, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.Resource, e.Cause, e.Err)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Cause == CauseTimeout
	case ErrHTTP:
		return e.Cause == CauseHTTP
	case ErrMalformed:
		return e.Cause == CauseMalformed
	case ErrExhausted:
		return e.Cause == CauseExhausted
	}
	return false
}

// Last returns the failure of the final attempt for an exhausted error, or
// the error itself otherwise.
func (e *RequestError) Last() *RequestError {
	if e.Cause != CauseExhausted {
		return e
	}
	var last *RequestError
	if errors.As(e.Err, &last) {
		return last
	}
	return e
}

// UpstreamError is the message of an `{"error": "..."}` payload.
type UpstreamError struct {
	Message string
}

func (e UpstreamError) Error() string { return "upstream error: " + e.Message }
