// Package distance provides the vector distance functions used to build and query
// field indexes.
//
// Every distance follows the same convention: smaller means closer.
//
// # Supported Metrics
//
//   - MetricEuclidean: sqrt of the summed squared differences (default)
//   - MetricDotProduct: negated inner product
//   - MetricCosine: 1 - cosine similarity
//
// # Usage
//
//	fn, err := distance.Provider(distance.MetricCosine)
//	d := fn(a, b)
//
// Hot paths call a Func directly and assume validated input. Use Compute when the
// inputs have not been checked by a vector store.
package distance
