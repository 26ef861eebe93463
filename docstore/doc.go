// Package docstore keeps the stored payload of each indexed vector.
//
// A Record holds the display fields of a document (name, description, ...)
// and its filterable attributes. Records are keyed by (field, id) where id
// is the vector's position in the field's index. Three backends exist:
//
//   - MemoryStore: maps, lost on exit
//   - BoltStore: one bbolt bucket per field
//   - BadgerStore: badger keys of the form "d:" + len(field) + field + id
//
// Attributes are replayed into a metadata.Index on open, so predicate
// filters survive a restart.
package docstore
