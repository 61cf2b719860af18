package twitter

import (
	"errors"
	"fmt"
)

// ErrRateLimited indicates the server rejected a call with HTTP 429 despite
// the client-side limiter. The shared quota is exhausted for the window, so
// callers should stop issuing requests rather than retry.
var ErrRateLimited = errors.New("twitter: rate limit exceeded")

// AuthError indicates the bearer credential was rejected (HTTP 401).
type AuthError struct {
	Endpoint string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("twitter: authentication failed at %s", e.Endpoint)
}

// NetworkError wraps a transport-level failure (DNS, connection, timeout).
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("twitter: request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError covers non-2xx responses other than 401/429, and 2xx responses
// whose body does not decode into the expected shape. Either way the remote
// contract differs from what this client expects.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("twitter: %s returned %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("twitter: %s: %s", e.Endpoint, e.Message)
}

// ConfigError indicates invalid client or limiter construction parameters.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "twitter: " + e.Message
}
