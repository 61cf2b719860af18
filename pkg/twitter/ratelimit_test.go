package twitter

import (
	"errors"
	"testing"
)

func TestNewLimiter(t *testing.T) {
	t.Run("rejects non-positive quota", func(t *testing.T) {
		for _, quota := range []int{0, -1} {
			_, err := NewLimiter(quota)
			if err == nil {
				t.Fatalf("NewLimiter(%d): expected error, got nil", quota)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("NewLimiter(%d) error = %T, want *ConfigError", quota, err)
			}
		}
	})

	t.Run("allows a full burst then blocks", func(t *testing.T) {
		limiter, err := NewLimiter(3)
		if err != nil {
			t.Fatalf("NewLimiter(3): %v", err)
		}
		for i := 0; i < 3; i++ {
			if !limiter.Allow() {
				t.Fatalf("token %d should be available", i+1)
			}
		}
		if limiter.Allow() {
			t.Error("fourth token should not be available inside one window")
		}
	})
}
