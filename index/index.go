package index

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hnswfield/model"
)

var (
	// ErrInvalidK is returned when a search asks for fewer than one result.
	ErrInvalidK = errors.New("k must be positive")

	// ErrNodeExists is returned when a graph insertion reuses an ID.
	ErrNodeExists = errors.New("node already exists")
)

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrNodeNotFound is returned when an ID has no vector or graph node.
type ErrNodeNotFound struct {
	ID model.ID
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node %d not found", uint32(e.ID))
}

// SearchResult represents a search result.
type SearchResult struct {
	// ID is the internal identifier of the matched vector.
	ID model.ID

	// Distance is the distance between the query vector and the result vector.
	Distance float32
}

// FilterFunc reports whether an ID may appear in a result set.
type FilterFunc func(id model.ID) bool

// SearchOptions tunes a single approximate search.
type SearchOptions struct {
	// EFSearch is the layer-0 beam width. The effective width is max(EFSearch, k).
	// Zero selects the index default.
	EFSearch int

	// Filter restricts which IDs are admitted into the result set.
	// Rejected nodes are still traversed.
	Filter FilterFunc
}

// SearchStats describes the work done by one approximate search.
type SearchStats struct {
	// EF is the beam width actually used on layer 0.
	EF int
	// Visited is the number of distinct nodes scored on layer 0.
	Visited int
	// Exhaustive is true when layer 0 traversal reached every node in the graph,
	// which makes the result exact for the admitted set.
	Exhaustive bool
}

// Vectors resolves an ID to its stored vector.
type Vectors interface {
	// Vector returns the vector stored under id.
	Vector(id model.ID) ([]float32, bool)
	// Count returns the number of stored vectors. IDs are dense in [0, Count).
	Count() int
}
