package metadata

import (
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tidwall/btree"

	"github.com/hupe1980/hnswfield/filter"
	"github.com/hupe1980/hnswfield/model"
)

// numEntry associates a numeric attribute value with an ID.
type numEntry struct {
	value float64
	id    model.ID
}

func numEntryLess(a, b numEntry) bool {
	if a.value != b.value {
		return a.value < b.value
	}
	return a.id < b.id
}

// Index stores attribute documents and answers filters with bitmaps.
//
// Layout:
//   - documents: id -> document
//   - inverted:  key -> value key -> bitmap of IDs (Eq, In)
//   - present:   key -> bitmap of IDs having the key (Ne)
//   - numeric:   key -> B-tree of (value, id) (Gt, Gte, Lt, Lte)
//
// Index is safe for concurrent use.
type Index struct {
	mu sync.RWMutex

	documents map[model.ID]Document
	inverted  map[string]map[string]*roaring.Bitmap
	present   map[string]*roaring.Bitmap
	numeric   map[string]*btree.BTreeG[numEntry]
	all       *roaring.Bitmap
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		documents: make(map[model.ID]Document),
		inverted:  make(map[string]map[string]*roaring.Bitmap),
		present:   make(map[string]*roaring.Bitmap),
		numeric:   make(map[string]*btree.BTreeG[numEntry]),
		all:       roaring.New(),
	}
}

// Set stores doc for id, replacing any previous document.
func (ix *Index) Set(id model.ID, doc Document) {
	doc = doc.Clone()
	if doc == nil {
		doc = Document{}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.documents[id]; ok {
		ix.removeLocked(id, old)
	}
	ix.documents[id] = doc
	ix.all.Add(uint32(id))

	for key, value := range doc {
		values, ok := ix.inverted[key]
		if !ok {
			values = make(map[string]*roaring.Bitmap)
			ix.inverted[key] = values
		}
		vk := value.Key()
		bm, ok := values[vk]
		if !ok {
			bm = roaring.New()
			values[vk] = bm
		}
		bm.Add(uint32(id))

		p, ok := ix.present[key]
		if !ok {
			p = roaring.New()
			ix.present[key] = p
		}
		p.Add(uint32(id))

		if n, ok := value.Number(); ok {
			tree, ok := ix.numeric[key]
			if !ok {
				tree = btree.NewBTreeG[numEntry](numEntryLess)
				ix.numeric[key] = tree
			}
			tree.Set(numEntry{value: n, id: id})
		}
	}
}

func (ix *Index) removeLocked(id model.ID, doc Document) {
	for key, value := range doc {
		if values, ok := ix.inverted[key]; ok {
			vk := value.Key()
			if bm, ok := values[vk]; ok {
				bm.Remove(uint32(id))
				if bm.IsEmpty() {
					delete(values, vk)
				}
			}
		}
		if p, ok := ix.present[key]; ok {
			p.Remove(uint32(id))
		}
		if n, ok := value.Number(); ok {
			if tree, ok := ix.numeric[key]; ok {
				tree.Delete(numEntry{value: n, id: id})
			}
		}
	}
}

// Get returns the document stored for id.
func (ix *Index) Get(id model.ID) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.documents[id]
	return doc, ok
}

// Len returns the number of documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.documents)
}

// Evaluate returns the IDs whose documents match every filter in fs.
// A nil or empty set matches every document.
func (ix *Index) Evaluate(fs *FilterSet) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	result := ix.all.Clone()
	if fs == nil {
		return result
	}
	for i := range fs.Filters {
		result.And(ix.evaluateLocked(&fs.Filters[i]))
		if result.IsEmpty() {
			break
		}
	}
	return result
}

// Predicate compiles fs into a search predicate.
func (ix *Index) Predicate(fs *FilterSet) *filter.Bitmap {
	return filter.FromRoaring(ix.Evaluate(fs))
}

func (ix *Index) evaluateLocked(f *Filter) *roaring.Bitmap {
	switch f.Operator {
	case OpEqual:
		return ix.lookupLocked(f.Key, f.Value)
	case OpIn:
		out := roaring.New()
		for _, v := range f.Value.A {
			out.Or(ix.lookupLocked(f.Key, v))
		}
		return out
	case OpNotEqual:
		p, ok := ix.present[f.Key]
		if !ok {
			return roaring.New()
		}
		return roaring.AndNot(p, ix.lookupLocked(f.Key, f.Value))
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		return ix.rangeLocked(f)
	default:
		return roaring.New()
	}
}

func (ix *Index) lookupLocked(key string, v Value) *roaring.Bitmap {
	if values, ok := ix.inverted[key]; ok {
		if bm, ok := values[v.Key()]; ok {
			return bm.Clone()
		}
	}
	return roaring.New()
}

func (ix *Index) rangeLocked(f *Filter) *roaring.Bitmap {
	out := roaring.New()
	bound, ok := f.Value.Number()
	tree, exists := ix.numeric[f.Key]
	if !ok || !exists {
		return out
	}

	switch f.Operator {
	case OpGreaterThan, OpGreaterEqual:
		tree.Ascend(numEntry{value: bound}, func(e numEntry) bool {
			if f.Operator == OpGreaterEqual || e.value > bound {
				out.Add(uint32(e.id))
			}
			return true
		})
	case OpLessThan, OpLessEqual:
		tree.Ascend(numEntry{value: math.Inf(-1)}, func(e numEntry) bool {
			if e.value > bound || (f.Operator == OpLessThan && e.value == bound) {
				return false
			}
			out.Add(uint32(e.id))
			return true
		})
	}
	return out
}

// Scan evaluates fs by testing every document. It is the reference for
// Evaluate and serves filters on indexes too small to bother with bitmaps.
func (ix *Index) Scan(fs *FilterSet) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := roaring.New()
	for id, doc := range ix.documents {
		if fs == nil || fs.Matches(doc) {
			out.Add(uint32(id))
		}
	}
	return out
}

// Stats describes the index.
type Stats struct {
	Documents   int
	Keys        int
	Bitmaps     int
	MemoryBytes uint64
}

// Stats returns statistics about the index.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	st := Stats{Documents: len(ix.documents), Keys: len(ix.present)}
	for _, values := range ix.inverted {
		for _, bm := range values {
			st.Bitmaps++
			st.MemoryBytes += bm.GetSizeInBytes()
		}
	}
	return st
}
