// Package engine routes vectors and queries to per-field HNSW indexes.
//
// Each field owns a vector store and a graph, both configured by the
// field's entry in a registry.Registry. Fields are created by their first
// insertion, which also freezes their configuration.
//
// # Concurrency
//
// Inserts into one field are serialized by that field's writer mutex:
//
//   - Validate the vector against the field's dimension
//   - Plan the graph linkage for the next ID from published state
//   - Append the vector to the store
//   - Publish the plan (node, neighbor lists, entry point)
//
// A failure before the last two steps changes nothing. Searches never take
// the writer mutex and run in parallel with inserts and with each other.
// Fields share nothing besides the field map, which is locked only to add
// a field.
//
// # Query dispatch
//
// ModeAuto answers with an exact scan when k covers the whole field and with
// a graph search otherwise. Filtered graph searches go through a
// filter.Coordinator that widens the beam for restrictive predicates and
// falls back to an exact scan of the accepted IDs.
package engine
