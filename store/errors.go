package store

import (
	"errors"
	"fmt"
)

// ErrConflict signals a lost compare-and-swap: the item's version moved
// between the caller's read and its conditional write. It is the only
// store error that is safe to retry, and every retry must re-read fresh
// state first.
var ErrConflict = errors.New("store: version conflict")

// IsConflict reports whether err is (or wraps) a lost CAS. It is the
// retryable-predicate used at every read-modify-write call site.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// TooManyAttributesError is returned by Put when an item is at its
// configured attribute cap and the write would grow it. Tombstone writes
// are exempt so deletions are never blocked by the cap.
type TooManyAttributesError struct {
	Item string
	Max  int
}

func (e TooManyAttributesError) Error() string {
	return fmt.Sprintf("store: item %q is at its cap of %d attributes", e.Item, e.Max)
}

// StoreError wraps any backend fault that is not a lost CAS. It is fatal
// for the current attempt and never retried.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }

func (e StoreError) Unwrap() error { return e.Err }
