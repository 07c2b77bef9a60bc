package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the SQL gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway http %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway http %d: %s", e.StatusCode, e.Message)
}

// IsRetryable classifies a fetch failure. Network-level errors and 429/5xx
// responses are retryable on the next poll tick; 4xx responses and malformed
// bodies are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return apiErr.StatusCode >= 500
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return false
	}
	return true
}

// MalformedResponseError marks a 2xx response whose body could not be decoded.
type MalformedResponseError struct {
	Operation string
	Err       error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Operation, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the gateway answered 404 for the statement.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
