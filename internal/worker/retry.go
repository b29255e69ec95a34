package worker

import "time"

// retryDelay computes the backoff before a failed job becomes eligible
// again: errorCount^4 + 3 seconds. Fast-growing, with a non-zero floor so
// even a first failure is delayed (4s, 19s, 84s, 259s, ...).
func retryDelay(errorCount int) time.Duration {
	n := errorCount * errorCount * errorCount * errorCount
	return time.Duration(n+3) * time.Second
}
