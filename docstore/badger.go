package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/hnswfield/codec"
	"github.com/hupe1980/hnswfield/model"
)

const badgerKeyPrefix = "d:"

// BadgerStore is a Store backed by a badger directory.
type BadgerStore struct {
	db    *badger.DB
	path  string
	codec codec.Codec
}

// NewBadgerStore opens or creates a badger database in dir.
func NewBadgerStore(dir string, optFns ...Option) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create directory %s: %w", dir, err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: open badger %s: %w", dir, err)
	}
	return &BadgerStore{db: db, path: dir, codec: applyOptions(optFns).Codec}, nil
}

// badgerPrefix length-prefixes field so no field's prefix covers another's keys.
func badgerPrefix(field string) []byte {
	b := append([]byte(badgerKeyPrefix), byte(len(field)>>8), byte(len(field)))
	return append(b, field...)
}

func badgerKey(field string, id model.ID) []byte {
	return append(badgerPrefix(field), idKey(id)...)
}

// Put implements Store.
func (s *BadgerStore) Put(_ context.Context, field string, id model.ID, rec Record) error {
	data, err := encode(s.codec, rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(field, id), data)
	})
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, field string, id model.ID) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(field, id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(field, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = decode(s.codec, val)
			return err
		})
	})
	return rec, err
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, field string, id model.ID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(field, id))
	})
}

// ForEach implements Store.
func (s *BadgerStore) ForEach(ctx context.Context, field string, fn func(model.ID, Record) error) error {
	prefix := badgerPrefix(field)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id, ok := parseIDKey(item.Key()[len(prefix):])
			if !ok {
				return fmt.Errorf("docstore: malformed key %q", item.Key())
			}
			var rec Record
			if err := item.Value(func(val []byte) error {
				var err error
				rec, err = decode(s.codec, val)
				return err
			}); err != nil {
				return err
			}
			if err := fn(id, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
