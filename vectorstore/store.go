package vectorstore

import (
	"iter"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/model"
)

const initialCapacity = 1024

// Store is an append-only columnar vector store.
type Store struct {
	dim  atomic.Int32
	data atomic.Pointer[[]float32]

	mu sync.Mutex
}

var _ index.Vectors = (*Store)(nil)

// New creates an empty store. A dim of zero lets the first Insert fix the dimension.
func New(dim int) *Store {
	s := &Store{}
	if dim > 0 {
		s.dim.Store(int32(dim))
	}
	data := make([]float32, 0)
	s.data.Store(&data)
	return s
}

// Dimension returns the vector dimensionality, or zero if none has been established.
func (s *Store) Dimension() int {
	return int(s.dim.Load())
}

// Count returns the number of stored vectors.
func (s *Store) Count() int {
	dim := int(s.dim.Load())
	if dim == 0 {
		return 0
	}
	return len(*s.data.Load()) / dim
}

// NextID returns the ID the next successful Insert will assign.
func (s *Store) NextID() model.ID {
	return model.ID(s.Count())
}

// Check validates v against the store without storing it.
func (s *Store) Check(v []float32) error {
	if dim := s.Dimension(); dim != 0 && len(v) != dim {
		return &index.ErrDimensionMismatch{Expected: dim, Actual: len(v)}
	}
	return distance.Validate(v)
}

// Insert validates v, copies it into the store and returns its ID.
// A rejected vector leaves the store untouched.
func (s *Store) Insert(v []float32) (model.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Check(v); err != nil {
		return 0, err
	}

	dim := s.Dimension()
	if dim == 0 {
		dim = len(v)
		s.dim.Store(int32(dim))
	}

	cur := *s.data.Load()
	id := model.ID(len(cur) / dim)

	next := cur
	if cap(cur)-len(cur) < dim {
		newCap := 2 * cap(cur)
		if newCap < initialCapacity*dim {
			newCap = initialCapacity * dim
		}
		next = make([]float32, len(cur), newCap)
		copy(next, cur)
	}
	next = append(next, v...)
	s.data.Store(&next)

	return id, nil
}

// Vector returns the vector stored under id.
// The returned slice aliases internal memory and must not be modified.
func (s *Store) Vector(id model.ID) ([]float32, bool) {
	dim := int(s.dim.Load())
	if dim == 0 {
		return nil, false
	}
	data := *s.data.Load()
	start := int(id) * dim
	end := start + dim
	if end > len(data) {
		return nil, false
	}
	return data[start:end:end], true
}

// Get is an alias for Vector.
func (s *Store) Get(id model.ID) ([]float32, bool) {
	return s.Vector(id)
}

// All iterates over the vectors visible when iteration starts, in ID order.
func (s *Store) All() iter.Seq2[model.ID, []float32] {
	return func(yield func(model.ID, []float32) bool) {
		dim := int(s.dim.Load())
		if dim == 0 {
			return
		}
		data := *s.data.Load()
		for id := 0; (id+1)*dim <= len(data); id++ {
			start := id * dim
			if !yield(model.ID(id), data[start:start+dim:start+dim]) {
				return
			}
		}
	}
}

// Raw returns the contiguous vector data visible at call time.
// The slice aliases internal memory and must not be modified.
func (s *Store) Raw() []float32 {
	return *s.data.Load()
}

// Load builds a store from contiguous data holding len(data)/dim vectors.
func Load(dim int, data []float32) (*Store, error) {
	if dim <= 0 {
		return nil, &index.ErrDimensionMismatch{Expected: 1, Actual: dim}
	}
	if len(data)%dim != 0 {
		return nil, &index.ErrDimensionMismatch{Expected: dim, Actual: len(data) % dim}
	}
	for i := 0; i < len(data); i += dim {
		if err := distance.Validate(data[i : i+dim]); err != nil {
			return nil, err
		}
	}
	s := New(dim)
	cp := make([]float32, len(data))
	copy(cp, data)
	s.data.Store(&cp)
	return s, nil
}
