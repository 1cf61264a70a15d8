// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// BackoffBase controls the base duration for exponential backoff between
// attempts. Tests override this to avoid real sleeps.
var BackoffBase = 500 * time.Millisecond

// DefaultMaxAttempts is the attempt bound when a caller passes zero.
const DefaultMaxAttempts = 3

// Retry calls fn up to maxAttempts times with exponential backoff
// (BackoffBase, 2x, 4x, ...). Errors whose kind is auth, config, or parse
// return immediately. Unclassified errors are treated as transient.
func Retry[T any](ctx context.Context, logger *zap.Logger, op string, maxAttempts int, fn func(context.Context) (T, error)) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BackoffBase
			logger.Debug("retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !shouldRetry(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%s: after %d attempts: %w", op, maxAttempts, lastErr)
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch KindOf(err) {
	case KindAuth, KindConfig, KindParse:
		return false
	default:
		return true
	}
}
