package hnswfield

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/hupe1980/hnswfield/docstore"
	"github.com/hupe1980/hnswfield/embedding"
	"github.com/hupe1980/hnswfield/engine"
	"github.com/hupe1980/hnswfield/filter"
	"github.com/hupe1980/hnswfield/metadata"
	"github.com/hupe1980/hnswfield/model"
)

// SearchResult is one hit, closest first.
type SearchResult struct {
	ID       model.ID
	Distance float32
	// Record is nil when the vector was inserted without one or records
	// were not requested.
	Record *docstore.Record
}

// SearchResponse holds the hits of a search and how they were found.
type SearchResponse struct {
	Hits []SearchResult
	// Status tells whether fewer than k hits mean that no more matches exist.
	Status filter.Status
	Path   filter.Path
	Rounds int
	EF     int
}

// Search creates a new fluent search builder for the given query vector.
//
// Example:
//
//	results, err := db.Search("description_vector", query).
//	    KNN(10).
//	    EF(100).
//	    Where(metadata.Gte("year", 2000)).
//	    Execute(ctx)
func (db *DB) Search(field string, query []float32) *SearchBuilder {
	return &SearchBuilder{
		db:          db,
		field:       field,
		query:       query,
		k:           10, // Default k
		withRecords: true,
	}
}

// SearchText creates a search builder whose query is embedded from text.
// Execution fails with ErrNoEmbedder when the database has no embedder.
func (db *DB) SearchText(field, text string) *SearchBuilder {
	sb := db.Search(field, nil)
	sb.text = &text
	return sb
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	db    *DB
	field string
	query []float32
	text  *string
	k     int
	ef    int
	mode  engine.Mode

	// Filters
	filterFunc func(id model.ID) bool
	filters    []metadata.Filter

	withRecords bool
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// EF sets the beam width of the graph search.
// Higher values improve recall but slow down search.
// Values below k are raised to k.
func (sb *SearchBuilder) EF(ef int) *SearchBuilder {
	sb.ef = ef
	return sb
}

// Mode chooses between graph search and exact scan. The default picks the
// exact scan when k covers the whole field.
func (sb *SearchBuilder) Mode(m engine.Mode) *SearchBuilder {
	sb.mode = m
	return sb
}

// Exact forces an exact scan.
func (sb *SearchBuilder) Exact() *SearchBuilder {
	return sb.Mode(engine.ModeExact)
}

// Where adds attribute filters. All filters must match.
func (sb *SearchBuilder) Where(filters ...metadata.Filter) *SearchBuilder {
	sb.filters = append(sb.filters, filters...)
	return sb
}

// WhereSet adds the filters of fs.
func (sb *SearchBuilder) WhereSet(fs *metadata.FilterSet) *SearchBuilder {
	if fs != nil {
		sb.filters = append(sb.filters, fs.Filters...)
	}
	return sb
}

// Filter sets a filter function for search results.
// Only vectors where fn returns true are considered.
func (sb *SearchBuilder) Filter(fn func(id model.ID) bool) *SearchBuilder {
	sb.filterFunc = fn
	return sb
}

// WithoutRecords skips loading the records of the hits.
func (sb *SearchBuilder) WithoutRecords() *SearchBuilder {
	sb.withRecords = false
	return sb
}

// Run executes the search and returns the hits together with the filter status.
func (sb *SearchBuilder) Run(ctx context.Context) (*SearchResponse, error) {
	db := sb.db
	if db.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	resp, err := sb.run(ctx)
	err = translateError(err)

	status := ""
	hits := 0
	if resp != nil {
		status = resp.Status.String()
		hits = len(resp.Hits)
	}
	db.metrics.RecordSearch(sb.field, sb.k, status, time.Since(start), err)
	db.logger.LogSearch(ctx, sb.field, sb.k, hits, status, err)
	return resp, err
}

func (sb *SearchBuilder) run(ctx context.Context) (*SearchResponse, error) {
	db := sb.db

	query := sb.query
	if sb.text != nil {
		if db.opts.embedder == nil {
			return nil, ErrNoEmbedder
		}
		var err error
		if query, err = embedding.Query(ctx, db.opts.embedder, *sb.text); err != nil {
			return nil, err
		}
	}

	var pred filter.Predicate
	if len(sb.filters) > 0 {
		pred = db.attributes(sb.field, false).Predicate(metadata.NewFilterSet(sb.filters...))
	}
	if sb.filterFunc != nil {
		pred = filter.And(pred, filter.Func(sb.filterFunc))
	}

	resp, err := db.engine.Search(ctx, engine.Query{
		Field:    sb.field,
		Vector:   query,
		K:        sb.k,
		EFSearch: sb.ef,
		Filter:   pred,
		Mode:     sb.mode,
	})
	if err != nil {
		return nil, err
	}

	out := &SearchResponse{
		Hits:   make([]SearchResult, len(resp.Hits)),
		Status: resp.Status,
		Path:   resp.Path,
		Rounds: resp.Rounds,
		EF:     resp.EF,
	}
	for i, h := range resp.Hits {
		out.Hits[i] = SearchResult{ID: h.ID, Distance: h.Distance}
		if !sb.withRecords {
			continue
		}
		rec, err := db.docs.Get(ctx, sb.field, h.ID)
		switch {
		case err == nil:
			out.Hits[i].Record = &rec
		case errors.Is(err, docstore.ErrNotFound):
		default:
			return nil, err
		}
	}
	return out, nil
}

// Execute runs the search and returns the results.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]SearchResult, error) {
	resp, err := sb.Run(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// MustExecute runs the search, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (sb *SearchBuilder) MustExecute(ctx context.Context) []SearchResult {
	results, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return results
}

// Stream returns an iterator over search results.
// Results are yielded in order from nearest to farthest.
// The iterator supports early termination by breaking from the loop.
//
// Example:
//
//	for result, err := range db.Search(field, query).KNN(100).Stream(ctx) {
//	    if err != nil { break }
//	    if result.Distance > 1.0 { break } // Early termination
//	    process(result)
//	}
func (sb *SearchBuilder) Stream(ctx context.Context) iter.Seq2[SearchResult, error] {
	return func(yield func(SearchResult, error) bool) {
		results, err := sb.Execute(ctx)
		if err != nil {
			yield(SearchResult{}, err)
			return
		}
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// First returns only the nearest result, or ErrNotFound if none found.
func (sb *SearchBuilder) First(ctx context.Context) (SearchResult, error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return SearchResult{}, err
	}
	if len(results) == 0 {
		return SearchResult{}, ErrNotFound
	}
	return results[0], nil
}

// Count executes the search and returns the number of results.
func (sb *SearchBuilder) Count(ctx context.Context) (int, error) {
	results, err := sb.Execute(ctx)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}
