// Package retry runs read-modify-write bodies under a bounded attempt
// count, retrying only errors the caller's predicate marks transient.
package retry

import "context"

// Do invokes fn up to attempts times, stopping early on success, on the
// first error the retryable predicate rejects, or when ctx is done. The
// body must re-read any state it depends on: a retry after a lost CAS
// against a stale snapshot would just lose again.
//
// Returns the last error when attempts are exhausted.
func Do(ctx context.Context, attempts int, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}
