package crawl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/moodwatch/moodwatch/pkg/twitter"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"auth", &twitter.AuthError{Endpoint: "/users/by"}, KindAuth},
		{"rate limit", twitter.ErrRateLimited, KindRateLimit},
		{"wrapped rate limit", fmt.Errorf("fetch: %w", twitter.ErrRateLimited), KindRateLimit},
		{"network", &twitter.NetworkError{Endpoint: "/users/by", Err: errors.New("dial tcp: timeout")}, KindNetwork},
		{"api change", &twitter.APIError{Endpoint: "/users/by", Status: 500, Message: "oops"}, KindAPIChange},
		{"client config", &twitter.ConfigError{Message: "bad quota"}, KindConfig},
		{"crawl config", &ConfigError{Message: "missing tweet id"}, KindConfig},
		{"store", &StoreError{Op: "insert", Err: errors.New("disk full")}, KindStore},
		{"unknown", errors.New("something else"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestAbortCycle(t *testing.T) {
	if !abortCycle(&twitter.AuthError{Endpoint: "/users/by"}) {
		t.Error("auth error should abort the cycle")
	}
	if !abortCycle(twitter.ErrRateLimited) {
		t.Error("rate limit error should abort the cycle")
	}
	if abortCycle(&twitter.APIError{Status: 500}) {
		t.Error("generic API error should not abort the cycle")
	}
	if abortCycle(&twitter.NetworkError{Err: errors.New("timeout")}) {
		t.Error("network error should not abort the cycle")
	}
}
