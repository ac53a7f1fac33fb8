package pipeline

import (
	"context"
	"errors"
	"math"
	"time"

	"jobharvest-engine/internal/fetch"
)

// RetryPolicy bounds re-fetching of transiently failed URLs. Only
// timeout/429/5xx failures are retried; client errors and breaker-open
// refusals are not.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // doubled per attempt
	MaxDelay    time.Duration
}

func (p RetryPolicy) fill() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 2
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	return p
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// fetchWithRetry runs the fetch under the policy. Each attempt goes back
// through the throttle gate, so an open breaker cuts retries short.
func fetchWithRetry(ctx context.Context, cl *fetch.Client, url string, p RetryPolicy) (*fetch.Content, error) {
	p = p.fill()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.delay(attempt - 1)):
			}
		}

		content, err := cl.Fetch(ctx, url)
		if err == nil {
			return content, nil
		}
		lastErr = err

		var fe *fetch.Error
		if !errors.As(err, &fe) || !fe.Kind.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}
