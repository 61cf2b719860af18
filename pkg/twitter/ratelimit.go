package twitter

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// rateWindow is the period over which the Twitter API enforces its cap.
const rateWindow = 15 * time.Minute

// NewLimiter builds a token bucket that refills perWindow tokens over each
// 15-minute window, with burst capacity perWindow. Every outbound request,
// including each pagination page and each batched lookup, must acquire one
// token via Wait before sending.
func NewLimiter(perWindow int) (*rate.Limiter, error) {
	if perWindow <= 0 {
		return nil, &ConfigError{Message: fmt.Sprintf("rate limit per window must be positive, got %d", perWindow)}
	}
	return rate.NewLimiter(rate.Every(rateWindow/time.Duration(perWindow)), perWindow), nil
}
