package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/qbit/internal/logger"
)

const (
	firstBackoff = 2 * time.Second
	maxBackoff   = 30 * time.Second
)

// retry runs attempt until it succeeds, ctx is done or maxWait elapses.
// Each attempt gets its own timeout.
func retry(ctx context.Context, what string, maxWait, timeout time.Duration, attempt func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	backoff := firstBackoff
	for {
		actx, cancel := context.WithTimeout(ctx, timeout)
		err := attempt(actx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("%s: gave up after %v: %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d*2 > maxBackoff {
		return maxBackoff
	}
	return d * 2
}
