package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hupe1980/hnswfield/codec"
	"github.com/hupe1980/hnswfield/model"
)

const boltBucketPrefix = "docs_"

// BoltStore is a Store backed by a single bbolt file.
type BoltStore struct {
	db    *bbolt.DB
	path  string
	codec codec.Codec
}

// NewBoltStore opens or creates the bbolt file at path.
func NewBoltStore(path string, optFns ...Option) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("docstore: open bolt %s: %w", path, err)
	}
	return &BoltStore{db: db, path: path, codec: applyOptions(optFns).Codec}, nil
}

// Path returns the database file.
func (s *BoltStore) Path() string { return s.path }

func boltBucket(field string) []byte {
	return []byte(boltBucketPrefix + field)
}

// Put implements Store.
func (s *BoltStore) Put(_ context.Context, field string, id model.ID, rec Record) error {
	data, err := encode(s.codec, rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(boltBucket(field))
		if err != nil {
			return fmt.Errorf("docstore: bucket %s: %w", field, err)
		}
		return bucket.Put(idKey(id), data)
	})
}

// Get implements Store.
func (s *BoltStore) Get(_ context.Context, field string, id model.ID) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket(field))
		if bucket == nil {
			return notFound(field, id)
		}
		data := bucket.Get(idKey(id))
		if data == nil {
			return notFound(field, id)
		}
		var err error
		rec, err = decode(s.codec, data)
		return err
	})
	return rec, err
}

// Delete implements Store.
func (s *BoltStore) Delete(_ context.Context, field string, id model.ID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket(boltBucket(field)); bucket != nil {
			return bucket.Delete(idKey(id))
		}
		return nil
	})
}

// ForEach implements Store. Keys are big-endian so the cursor yields ids in order.
func (s *BoltStore) ForEach(ctx context.Context, field string, fn func(model.ID, Record) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket(field))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, ok := parseIDKey(k)
			if !ok {
				return fmt.Errorf("docstore: malformed key %x in %s", k, field)
			}
			rec, err := decode(s.codec, v)
			if err != nil {
				return err
			}
			return fn(id, rec)
		})
	})
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
