package crawl

import (
	"errors"
	"fmt"

	"github.com/moodwatch/moodwatch/pkg/twitter"
)

// ErrorKind is the closed classification used for recorded errors and for
// abort decisions. The literals are persisted in error rows.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindNetwork   ErrorKind = "network"
	KindAPIChange ErrorKind = "api_change"
	KindConfig    ErrorKind = "config"
	KindStore     ErrorKind = "store"
	KindOther     ErrorKind = "other"
)

// ConfigError marks a malformed or invalid input, such as a reanalysis
// request missing a required field or carrying an unknown type.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "config: " + e.Message }

// StoreError marks a persistence failure crossing the crawl boundary.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// Classify maps an error to its kind.
func Classify(err error) ErrorKind {
	var authErr *twitter.AuthError
	var netErr *twitter.NetworkError
	var apiErr *twitter.APIError
	var cfgErr *twitter.ConfigError
	var localCfgErr *ConfigError
	var stErr *StoreError

	switch {
	case errors.Is(err, twitter.ErrRateLimited):
		return KindRateLimit
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &apiErr):
		return KindAPIChange
	case errors.As(err, &cfgErr), errors.As(err, &localCfgErr):
		return KindConfig
	case errors.As(err, &stErr):
		return KindStore
	default:
		return KindOther
	}
}

// abortCycle reports whether an error invalidates all further API calls in
// the cycle. A rejected credential or an exhausted server-side budget breaks
// every subsequent request, so the cycle stops instead of burning quota on
// guaranteed failures.
func abortCycle(err error) bool {
	kind := Classify(err)
	return kind == KindAuth || kind == KindRateLimit
}
