// Package retry provides repeated execution of operations that failed with a
// temporary error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/logfields"
	"github.com/simplesurance/stagepromote/internal/promerr"
)

const (
	defBackoffInitialInterval     = 2 * time.Second
	defBackoffRandomizationFactor = 0.5
)

// Retryer executes a function repeatedly until it was successful or cancel
// condition happened.
type Retryer struct {
	logger          *zap.Logger
	maxRetryTimeout time.Duration

	backoffInitialInterval     time.Duration
	backoffRandomizationFactor float64
}

// NewRetryer returns a Retryer that gives up retrying an operation after
// maxRetryTimeout.
func NewRetryer(maxRetryTimeout time.Duration) *Retryer {
	return &Retryer{
		logger:                     zap.L().Named("retryer"),
		maxRetryTimeout:            maxRetryTimeout,
		backoffInitialInterval:     defBackoffInitialInterval,
		backoffRandomizationFactor: defBackoffRandomizationFactor,
	}
}

func (r *Retryer) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval
	bo.RandomizationFactor = r.backoffRandomizationFactor
	// the retry timeout is enforced via the context
	bo.MaxElapsedTime = 0
	bo.Reset()

	return bo
}

// Run executes fn until it was successful, it returned an error that
// does not wrap promerr.RetryableError, the retry timeout expired or the
// execution was aborted via the context.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	ctx, cancelFn := context.WithTimeout(ctx, r.maxRetryTimeout)
	defer cancelFn()

	deadline, _ := ctx.Deadline()
	bo := r.newBackoff()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	var lastErr error

	for {
		select {
		case <-ctx.Done():
			if lastErr == nil {
				return ctx.Err()
			}

			return fmt.Errorf("giving up after %d tries: %w, last error: %w", tryCnt, ctx.Err(), lastErr)

		case <-retryTimer.C:
			tryCnt++
			logger := r.logger.With(logF...).With(zap.Uint("try_count", tryCnt))

			err := fn(ctx)
			if err == nil {
				if tryCnt > 1 {
					logger.Debug(
						"operation succeeded after retrying",
						logfields.Event("retry_operation_succeeded"),
					)
				}

				return nil
			}

			var retryError *promerr.RetryableError
			if !errors.As(err, &retryError) {
				return err
			}

			lastErr = err
			logger = logger.With(zap.Error(err))

			if retryError.After.After(deadline) {
				logger.Info(
					"operation failed, next possible retry time is after timeout expiration",
					logfields.Event("retry_operation_failed"),
					zap.Time("earliest_allowed_retry", retryError.After),
				)

				return err
			}

			var retryIn time.Duration
			if retryError.After.IsZero() {
				retryIn = bo.NextBackOff()
			} else {
				retryIn = time.Until(retryError.After)
			}

			logger.Info(
				"operation failed, retry scheduled",
				logfields.Event("retry_scheduled"),
				zap.Duration("retry_in", retryIn),
				zap.Duration("retry_timeout", r.maxRetryTimeout),
			)

			retryTimer.Reset(retryIn)
		}
	}
}
