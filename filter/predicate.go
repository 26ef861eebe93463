package filter

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/hnswfield/model"
)

// Predicate decides whether an ID may appear in a result set.
type Predicate interface {
	Accepts(id model.ID) bool
}

// Counter is implemented by predicates that know how many IDs they accept.
// The coordinator then uses the exact selectivity instead of sampling.
type Counter interface {
	Cardinality() uint64
}

// Func adapts a plain function to a Predicate.
type Func func(id model.ID) bool

// Accepts implements Predicate.
func (f Func) Accepts(id model.ID) bool { return f(id) }

type all struct{}

func (all) Accepts(model.ID) bool { return true }

// All returns a predicate accepting every ID.
func All() Predicate { return all{} }

// None returns a predicate rejecting every ID.
func None() Predicate { return NewBitmap() }

// Bitmap is a Predicate backed by a Roaring bitmap of accepted IDs.
type Bitmap struct {
	rb *roaring.Bitmap
}

// NewBitmap creates a bitmap predicate accepting the given IDs.
func NewBitmap(ids ...model.ID) *Bitmap {
	rb := roaring.New()
	for _, id := range ids {
		rb.Add(uint32(id))
	}
	return &Bitmap{rb: rb}
}

// FromRoaring wraps an existing Roaring bitmap. The bitmap must not be mutated
// while searches use it.
func FromRoaring(rb *roaring.Bitmap) *Bitmap {
	if rb == nil {
		rb = roaring.New()
	}
	return &Bitmap{rb: rb}
}

// Add adds an ID to the accepted set.
func (b *Bitmap) Add(id model.ID) { b.rb.Add(uint32(id)) }

// Accepts implements Predicate.
func (b *Bitmap) Accepts(id model.ID) bool { return b.rb.Contains(uint32(id)) }

// Cardinality implements Counter.
func (b *Bitmap) Cardinality() uint64 { return b.rb.GetCardinality() }

// Roaring returns the underlying bitmap.
func (b *Bitmap) Roaring() *roaring.Bitmap { return b.rb }

// IDs iterates over the accepted IDs in ascending order.
func (b *Bitmap) IDs() iter.Seq[model.ID] {
	return func(yield func(model.ID) bool) {
		it := b.rb.Iterator()
		for it.HasNext() {
			if !yield(model.ID(it.Next())) {
				return
			}
		}
	}
}

type and []Predicate

func (a and) Accepts(id model.ID) bool {
	for _, p := range a {
		if !p.Accepts(id) {
			return false
		}
	}
	return true
}

// And returns a predicate accepting IDs accepted by every argument.
// Bitmap arguments are intersected eagerly.
func And(preds ...Predicate) Predicate {
	var (
		bm   *roaring.Bitmap
		rest and
	)
	for _, p := range preds {
		if p == nil {
			continue
		}
		if b, ok := p.(*Bitmap); ok {
			if bm == nil {
				bm = b.rb.Clone()
			} else {
				bm.And(b.rb)
			}
			continue
		}
		rest = append(rest, p)
	}

	switch {
	case bm != nil && len(rest) == 0:
		return FromRoaring(bm)
	case bm != nil:
		return append(and{FromRoaring(bm)}, rest...)
	case len(rest) == 1:
		return rest[0]
	case len(rest) == 0:
		return All()
	default:
		return rest
	}
}

type not struct{ p Predicate }

func (n not) Accepts(id model.ID) bool { return !n.p.Accepts(id) }

// Not returns the complement of p.
func Not(p Predicate) Predicate { return not{p: p} }
