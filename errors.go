package hnswfield

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/docstore"
	"github.com/hupe1980/hnswfield/engine"
	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/manifest"
	"github.com/hupe1980/hnswfield/registry"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidVector is returned for vectors with NaN or infinite components.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrUnknownField is returned when a searched field holds no vectors.
	ErrUnknownField = errors.New("unknown field")

	// ErrConfigFrozen is returned when a populated field is given a new configuration.
	ErrConfigFrozen = errors.New("field config is frozen")

	// ErrConfigMismatch is returned by Open when a configured field disagrees
	// with the configuration it was saved with.
	ErrConfigMismatch = errors.New("field config differs from saved config")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("database is closed")

	// ErrNoEmbedder is returned by text operations when no embedder is configured.
	ErrNoEmbedder = errors.New("no embedder configured")

	// ErrNotFound is returned when a search has no result or a record is missing.
	ErrNotFound = errors.New("not found")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, distance.ErrInvalidVector) {
		return fmt.Errorf("%w: %w", ErrInvalidVector, err)
	}
	if errors.Is(err, engine.ErrUnknownField) {
		return fmt.Errorf("%w: %w", ErrUnknownField, err)
	}
	if errors.Is(err, registry.ErrConfigFrozen) {
		return fmt.Errorf("%w: %w", ErrConfigFrozen, err)
	}
	if errors.Is(err, manifest.ErrConfigMismatch) {
		return fmt.Errorf("%w: %w", ErrConfigMismatch, err)
	}
	var nf *index.ErrNodeNotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
