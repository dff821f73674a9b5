// Package localstore is a BadgerDB-backed implementation of the
// versioned attribute store, for local development and tests. It
// enforces the same version, tombstone and attribute-cap semantics as
// the DynamoDB backend, but inside single Badger transactions.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/guoyu07/Sqawsh-sub001/store"
)

// Options configures the BadgerDB store.
type Options struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, logging is disabled.
	Logger badger.Logger
	// MaxAttributes caps the number of attributes per item. Zero means
	// no cap.
	MaxAttributes int
}

type Store struct {
	db      *badger.DB
	maxAttr int
}

var _ store.Store = (*Store)(nil)

// New opens a BadgerDB-backed store.
func New(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db, maxAttr: opts.MaxAttributes}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// record is the serialized form of one item.
type record struct {
	Version int64             `json:"version"`
	Attrs   map[string]string `json:"attrs"`
}

func loadRecord(txn *badger.Txn, item string) (*record, error) {
	entry, err := txn.Get([]byte(item))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode item %q: %w", item, err)
	}
	if rec.Attrs == nil {
		rec.Attrs = make(map[string]string)
	}
	return &rec, nil
}

func saveRecord(txn *badger.Txn, item string, rec *record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode item %q: %w", item, err)
	}
	return txn.Set([]byte(item), raw)
}

func activeAttributes(rec *record) []store.Attribute {
	var attrs []store.Attribute
	for name, value := range rec.Attrs {
		a := store.Attribute{Name: name, Value: value}
		if a.Tombstoned() {
			continue
		}
		attrs = append(attrs, a)
	}
	return attrs
}

func (s *Store) Get(ctx context.Context, item string) (*int64, []store.Attribute, error) {
	var version *int64
	var attrs []store.Attribute
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := loadRecord(txn, item)
		if err != nil || rec == nil {
			return err
		}
		v := rec.Version
		version = &v
		attrs = activeAttributes(rec)
		return nil
	})
	if err != nil {
		return nil, nil, store.StoreError{Op: "get " + item, Err: err}
	}
	return version, attrs, nil
}

func (s *Store) GetAll(ctx context.Context) ([]store.Item, error) {
	var items []store.Item
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			name := string(it.Item().Key())
			rec, err := loadRecord(txn, name)
			if err != nil {
				return err
			}
			items = append(items, store.Item{
				Name:       name,
				Version:    rec.Version,
				Attributes: activeAttributes(rec),
			})
		}
		return nil
	})
	if err != nil {
		return nil, store.StoreError{Op: "get all items", Err: err}
	}
	return items, nil
}

func (s *Store) Put(ctx context.Context, item string, expected *int64, attr store.Attribute) (int64, error) {
	var newVersion int64
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := loadRecord(txn, item)
		if err != nil {
			return err
		}
		switch {
		case rec == nil && expected != nil:
			return store.ErrConflict
		case rec != nil && (expected == nil || *expected != rec.Version):
			return store.ErrConflict
		}
		if rec == nil {
			rec = &record{Version: -1, Attrs: make(map[string]string)}
		}
		_, replacing := rec.Attrs[attr.Name]
		if s.maxAttr > 0 && len(rec.Attrs) >= s.maxAttr && !attr.Tombstoned() && !replacing {
			return store.TooManyAttributesError{Item: item, Max: s.maxAttr}
		}
		rec.Attrs[attr.Name] = attr.Value
		rec.Version++
		newVersion = rec.Version
		return saveRecord(txn, item, rec)
	})
	if err != nil {
		return 0, mapErr("put "+item, err)
	}
	return newVersion, nil
}

// Delete collapses the two-phase tombstone protocol into one
// transaction, preserving its observable effect: an existing attribute
// vanishes and the version is bumped exactly once, while deleting an
// absent attribute succeeds without touching the item.
func (s *Store) Delete(ctx context.Context, item string, attr store.Attribute) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := loadRecord(txn, item)
		if err != nil || rec == nil {
			return err
		}
		if _, ok := rec.Attrs[attr.Name]; !ok {
			return nil
		}
		delete(rec.Attrs, attr.Name)
		rec.Version++
		return saveRecord(txn, item, rec)
	})
	if err != nil {
		return mapErr("delete attribute of "+item, err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, item string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(item))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return mapErr("delete item "+item, err)
	}
	return nil
}

// mapErr passes this store's own error kinds through and classifies the
// rest. Badger aborts with ErrConflict when concurrent transactions
// touch the same keys, which is exactly a lost CAS.
func mapErr(op string, err error) error {
	if store.IsConflict(err) {
		return err
	}
	var tooMany store.TooManyAttributesError
	if errors.As(err, &tooMany) {
		return err
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s", store.ErrConflict, op)
	}
	return store.StoreError{Op: op, Err: err}
}
