// Package retry implements the fixed-interval retry loop every stage of the
// extractor uses: n attempts, a constant sleep between them, no backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// Abort marks err as permanent: Do returns it immediately instead of
// burning the remaining attempts. Used for failures more attempts cannot
// change, like a missing 2FA code or a permission denial.
func Abort(err error) error { return &abortError{err: err} }

// Do runs fn up to attempts times, sleeping delay between failures. The
// attempt index passed to fn is 1-based (for log lines). The last error is
// returned when every attempt fails; ctx cancellation cuts the loop short.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(i)
		if last == nil {
			return nil
		}
		var ab *abortError
		if errors.As(last, &ab) {
			return ab.err
		}
		if i < attempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, last)
}
