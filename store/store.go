// Package store defines the versioned attribute store the booking core
// persists through: named items, each a flat bag of string attributes
// plus a monotonically increasing version that is read and written as a
// unit. Writes are compare-and-swap on the version; deletes run a
// two-phase tombstone protocol so the version counter keeps its meaning
// on backends that have no native delete-with-version.
package store

import "context"

// Tombstone is the value written to an attribute to mark it logically
// deleted before it is physically removed. Reads never surface
// attributes carrying this value.
const Tombstone = "<inactive>"

// Attribute is one (name, value) pair inside an item. The name encodes
// the entity's identity, the value its payload.
type Attribute struct {
	Name  string
	Value string
}

// Tombstoned reports whether the attribute is logically deleted.
func (a Attribute) Tombstoned() bool { return a.Value == Tombstone }

// Item is one named attribute bag as returned by bulk reads.
type Item struct {
	Name       string
	Version    int64
	Attributes []Attribute
}

// Store is the persistence contract the managers are written against.
//
// Concurrency model: a single item's version imposes a total order on
// its successful writes. Two writers racing on the same item see exactly
// one success; the loser gets ErrConflict and must re-read before
// retrying. There is no ordering across items and none is needed.
type Store interface {
	// Get performs a consistent read of one item. The returned version
	// is nil if the item has never been written. Tombstoned attributes
	// are filtered out.
	Get(ctx context.Context, item string) (*int64, []Attribute, error)

	// GetAll reads every item. The scan is paginated and later pages may
	// be eventually consistent; callers needing read-after-write use Get.
	GetAll(ctx context.Context) ([]Item, error)

	// Put writes or replaces one attribute and bumps the item's version,
	// conditioned on the current version equalling expected, or on the
	// item not existing when expected is nil. Returns the new version.
	//
	// Fails with ErrConflict if the condition does not hold, and with
	// TooManyAttributesError if the item is at its attribute cap and the
	// write neither tombstones nor replaces an existing attribute.
	Put(ctx context.Context, item string, expected *int64, attr Attribute) (int64, error)

	// Delete removes one attribute via the tombstone protocol: a
	// CAS-write of the tombstone value (retried internally on conflict)
	// followed by a physical remove conditioned on the tombstone still
	// being present. Deleting an attribute that is already gone is a
	// no-op, and losing the physical-remove race is swallowed; both mean
	// someone else finished the job.
	Delete(ctx context.Context, item string, attr Attribute) error

	// DeleteAll unconditionally removes an item and all its attributes.
	// Used only for full resets of an item.
	DeleteAll(ctx context.Context, item string) error
}

// Find returns the attribute with the given name, if present.
func Find(attrs []Attribute, name string) (Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}
