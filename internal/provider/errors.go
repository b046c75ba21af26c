package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TransientError is a failure worth retrying: network trouble, timeouts,
// throttling and 5xx responses.
type TransientError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient error: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// APIError is a non-retryable rejection from the provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: request rejected (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// ConfigurationError reports a connector that cannot make calls, such as
// one without credentials.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: not configured: %s", e.Provider, e.Reason)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// classifyStatus maps an HTTP error response onto the error taxonomy.
func classifyStatus(provider string, code int, message string) error {
	if transientStatus(code) {
		return &TransientError{Provider: provider, StatusCode: code, Err: errors.New(message)}
	}
	return &APIError{Provider: provider, StatusCode: code, Message: message}
}

// classifyTransport maps an error that produced no HTTP response. Network
// failures and deadlines are transient; caller cancellation is not.
func classifyTransport(ctx context.Context, provider string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", provider, err)
	}
	return &TransientError{Provider: provider, Err: err}
}
