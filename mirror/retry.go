package mirror

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ilkerko/s3mirror/storage"
)

const (
	defaultMaxAttempts    = 5
	initialRetryInterval  = 100 * time.Millisecond
	maxRetryInterval      = 30 * time.Second
	retryIntervalGrowth   = 2
	defaultRequestTimeout = 5 * time.Minute
)

// retrier re-runs an operation on transient failures with exponential
// backoff. It is an explicit attempt-count state machine so the retry policy
// is testable without network calls.
type retrier struct {
	maxAttempts    int
	requestTimeout time.Duration
}

func newRetrier(maxAttempts int, requestTimeout time.Duration) *retrier {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &retrier{
		maxAttempts:    maxAttempts,
		requestTimeout: requestTimeout,
	}
}

// Do runs fn until it succeeds, fails permanently, exhausts the attempt
// budget or the run is canceled. Each attempt gets its own request timeout;
// a timed out attempt counts as transient. It returns the number of attempts
// made and the last error.
func (r *retrier) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	bkf := backoff.NewExponentialBackOff()
	bkf.InitialInterval = initialRetryInterval
	bkf.MaxInterval = maxRetryInterval
	bkf.Multiplier = retryIntervalGrowth
	bkf.Reset()

	var err error
	for attempt := 1; ; attempt++ {
		opctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
		err = fn(opctx)
		cancel()

		if err == nil {
			return attempt, nil
		}

		if !storage.IsRetryableError(err) || attempt >= r.maxAttempts {
			return attempt, err
		}

		select {
		case <-time.After(bkf.NextBackOff()):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
}
