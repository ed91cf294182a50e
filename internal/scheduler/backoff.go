package scheduler

import "time"

const (
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

// retryBackoff returns the wait before retry number attempt (1-based),
// doubling from backoffBase up to backoffMax.
func retryBackoff(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}
