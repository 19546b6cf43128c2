package sync

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultPushAttempts  = 3
	DefaultPushRetryWait = 3 * time.Second
)

// RetryPolicy bounds how often an operation is attempted.
type RetryPolicy struct {
	Attempts int           // total attempts, at least one
	Wait     time.Duration // fixed delay between attempts
	Clock    clockwork.Clock
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: DefaultPushAttempts,
		Wait:     DefaultPushRetryWait,
		Clock:    clockwork.NewRealClock(),
	}
}

// Retry runs fn until it succeeds or the policy's attempts are used up, returning the last
// error. onRetry, when set, is called before each wait with the attempts remaining.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error), onRetry func(remaining int, err error)) (T, error) {
	var zero T
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := max(p.Attempts, 1)

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		remaining := attempts - attempt
		if remaining <= 0 {
			return zero, err
		}
		if onRetry != nil {
			onRetry(remaining, err)
		}

		select {
		case <-ctx.Done():
			return zero, err
		case <-clock.After(p.Wait):
		}
	}
}
