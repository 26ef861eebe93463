package docstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"

	"github.com/hupe1980/hnswfield/codec"
	"github.com/hupe1980/hnswfield/metadata"
	"github.com/hupe1980/hnswfield/model"
)

var (
	// ErrNotFound is returned when no record is stored for (field, id).
	ErrNotFound = errors.New("docstore: record not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("docstore: store is closed")
)

// Record is the payload stored next to a vector.
type Record struct {
	Fields     map[string]string `json:"fields,omitempty"`
	Attributes metadata.Document `json:"attributes,omitempty"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	return Record{
		Fields:     maps.Clone(r.Fields),
		Attributes: r.Attributes.Clone(),
	}
}

// Store persists records.
type Store interface {
	Put(ctx context.Context, field string, id model.ID, rec Record) error
	Get(ctx context.Context, field string, id model.ID) (Record, error)
	// Delete removes the record of (field, id). Deleting a missing record is a no-op.
	Delete(ctx context.Context, field string, id model.ID) error
	// ForEach calls fn for every record of field in ascending id order.
	ForEach(ctx context.Context, field string, fn func(id model.ID, rec Record) error) error
	Close() error
}

func notFound(field string, id model.ID) error {
	return fmt.Errorf("%w: %s/%d", ErrNotFound, field, id)
}

// idKey encodes id big-endian so that byte order equals id order.
func idKey(id model.ID) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(id))
}

func parseIDKey(b []byte) (model.ID, bool) {
	if len(b) != 4 {
		return 0, false
	}
	return model.ID(binary.BigEndian.Uint32(b)), true
}

// Options configures the persistent stores.
type Options struct {
	// Codec encodes records. It defaults to codec.Default.
	Codec codec.Codec
}

// Option applies a change to Options.
type Option func(o *Options)

// WithCodec sets the record codec.
func WithCodec(c codec.Codec) Option {
	return func(o *Options) {
		if c != nil {
			o.Codec = c
		}
	}
}

func applyOptions(optFns []Option) Options {
	o := Options{Codec: codec.Default}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

func encode(c codec.Codec, rec Record) ([]byte, error) {
	data, err := c.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal record: %w", err)
	}
	return data, nil
}

func decode(c codec.Codec, data []byte) (Record, error) {
	var rec Record
	if err := c.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("docstore: unmarshal record: %w", err)
	}
	return rec, nil
}
