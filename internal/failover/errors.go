package failover

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/signalpilot/signalpilot/internal/provider"
)

type ProviderError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// statusCode extracts the HTTP status of a provider failure, or 0.
func statusCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	var ae *provider.APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

func IsRateLimitError(err error) bool {
	return statusCode(err) == 429
}

func IsAuthError(err error) bool {
	code := statusCode(err)
	return code == 401 || code == 403
}

// IsRetryable reports whether the same request may succeed on a later
// attempt. Backend errors embedded in a response body are permanent; a
// restart of the server is needed first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var be *provider.BackendError
	if errors.As(err, &be) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Retryable {
		return true
	}
	if code := statusCode(err); code != 0 {
		return code == 429 || code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

type AllExhaustedError struct {
	Attempted []string
	Last      error
}

func (e *AllExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("all models exhausted, attempted: %v: %v", e.Attempted, e.Last)
	}
	return fmt.Sprintf("all models exhausted, attempted: %v", e.Attempted)
}

func (e *AllExhaustedError) Unwrap() error { return e.Last }
