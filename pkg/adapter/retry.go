package adapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry policy defaults for transient I/O failures.
const (
	DefaultRetryAttempts = 3
	DefaultRetryBase     = time.Second
	DefaultRetryFactor   = 2.0
)

// retryBase is the initial backoff interval. Tests shrink it.
var retryBase = DefaultRetryBase

// Permanent wraps an error so Retry stops immediately. Adapters mark
// permission and validation failures permanent: retrying cannot help and the
// incident should continue without this backend.
func Permanent(err error) error { return backoff.Permanent(err) }

// Retry runs op with exponential backoff for transient errors: up to
// DefaultRetryAttempts attempts, starting at DefaultRetryBase and doubling.
// The context bounds the whole sequence.
//
// Operations with observable side effects must only be retried when the
// caller supplied an idempotency key; non-idempotent ops go through
// RetryIdempotent with idempotent=false, which runs exactly once.
func Retry(ctx context.Context, name string, op func() error) error {
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(retryBase),
		backoff.WithMultiplier(DefaultRetryFactor),
		backoff.WithRandomizationFactor(0.1),
	)

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil && attempt < DefaultRetryAttempts {
			slog.Debug("Retrying transient failure",
				"op", name, "attempt", attempt, "error", err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(DefaultRetryAttempts-1)), ctx))
}

// RetryIdempotent retries only when idempotent is true; otherwise op runs
// exactly once. Used by ExecuteAction paths where a replay could double a
// side effect.
func RetryIdempotent(ctx context.Context, name string, idempotent bool, op func() error) error {
	if !idempotent {
		return op()
	}
	return Retry(ctx, name, op)
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
