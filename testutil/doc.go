// Package testutil provides testing utilities for hnswfield.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing recall
// against exact results, and a small hand-embedded book catalogue whose
// nearest-neighbor rankings are known in advance.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(1000, 32)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(exact, approx)
package testutil
