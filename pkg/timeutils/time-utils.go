package timeutils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAllAttemptsFailed = errors.New("all attempts failed")
)

// Now is the wall clock in UTC. Cutoff arithmetic is only ever done in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// Retry calls function once per delay until onFinished reports no retry is needed.
// The delay is slept after a failed attempt, so the last delay is the pause
// before giving up.
func Retry[T any](
	ctx context.Context,
	attemptDelays []time.Duration,
	function func(context.Context) (T, error),
	onFinished func(T, error) (needRetry bool),
) (T, error) {
	var lastErr error
	for _, delay := range attemptDelays {
		if ctx.Err() != nil {
			var res T
			return res, fmt.Errorf("retry canceled: %w", ctx.Err())
		}
		res, err := function(ctx)
		if !onFinished(res, err) {
			return res, err
		}
		lastErr = err
		err = SleepCtx(ctx, delay)
		if err != nil {
			var res T
			return res, err
		}
	}
	var res T
	if lastErr != nil {
		return res, fmt.Errorf("%w: %w", ErrAllAttemptsFailed, lastErr)
	}
	return res, ErrAllAttemptsFailed
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
