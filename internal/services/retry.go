package services

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// retryDelay returns the wait before attempt, preferring a Retry-After header. Both paths are capped at maxDelay.
func retryDelay(attempt int, retryAfter string, baseDelay, maxDelay time.Duration) time.Duration {
	if d := parseRetryAfterSeconds(retryAfter); d > 0 {
		return min(d, maxDelay)
	}

	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
