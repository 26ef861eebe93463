// Package index defines the types shared by the field index implementations.
//
// Two implementations live below this package:
//
//   - hnsw: approximate search over a Hierarchical Navigable Small World graph
//   - flat: exact search by linear scan, used when k approaches the corpus size
//     and as the fallback of filtered searches
//
// Both return results as SearchResult values sorted by ascending distance.
package index
