// Package vectorstore provides the append-only, per-field vector storage.
//
// Vectors are stored contiguously in a single []float32 slice so that
// vectors[id] = data[id*dim : (id+1)*dim]. The backing slice is published
// atomically after every append, so readers never take a lock and never observe
// a partially written vector.
//
// Thread safety: any number of readers may run concurrently with one writer.
// Concurrent writers are serialized internally.
package vectorstore
