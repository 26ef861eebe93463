// Package metadata stores typed attribute documents per vector ID and turns
// attribute filters into search predicates.
//
// Equality and set membership are answered from an inverted index of Roaring
// bitmaps; numeric range comparisons walk an ordered B-tree per key. Every
// FilterSet compiles to a filter.Bitmap, so the search coordinator always
// knows the exact selectivity of an attribute filter.
//
//	idx := metadata.NewIndex()
//	idx.Set(id, metadata.Document{"year": metadata.Int(2008)})
//	pred := idx.Predicate(metadata.NewFilterSet(metadata.Gte("year", 2000)))
package metadata
