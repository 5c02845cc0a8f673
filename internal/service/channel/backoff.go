package channel

import "time"

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at maxDelay.
func calculateBackoff(attempt int, retryDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return maxDelay
	}

	delay := retryDelay * time.Duration(1<<uint(attempt-1))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}
