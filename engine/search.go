package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/filter"
	"github.com/hupe1980/hnswfield/index"
)

// Mode selects how a query is answered.
type Mode int

const (
	// ModeAuto uses an exact scan when k covers the field and the graph otherwise.
	ModeAuto Mode = iota
	// ModeANN always searches the graph.
	ModeANN
	// ModeExact always scans every stored vector.
	ModeExact
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeANN:
		return "ann"
	case ModeExact:
		return "exact"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMode parses a mode name as printed by String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "auto":
		return ModeAuto, nil
	case "ann":
		return ModeANN, nil
	case "exact":
		return ModeExact, nil
	default:
		return 0, fmt.Errorf("unknown search mode %q", s)
	}
}

// Query is a k-nearest-neighbor request against one field.
type Query struct {
	Field  string
	Vector []float32
	K      int
	// EFSearch overrides the field's default beam width when positive.
	EFSearch int
	// Filter restricts the result set. Nil accepts every vector.
	Filter filter.Predicate
	Mode   Mode
}

// Response holds the ranked hits of a query, closest first.
type Response struct {
	Hits   []index.SearchResult
	Status filter.Status
	Path   filter.Path
	// Rounds is the number of graph searches run. It is zero for exact scans
	// chosen up front.
	Rounds int
	EF     int
	// Selectivity is the estimated accepted fraction of the field. It is
	// zero when the query was answered by an up-front exact scan.
	Selectivity float64
}

// Search answers q. Fewer than K hits are not an error; Status tells whether
// more matches exist.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()
	resp, err := e.search(ctx, q)
	elapsed := time.Since(start)

	if err != nil {
		e.metrics.OnSearch(q.Field, q.K, "", "", elapsed, err)
		e.logger.DebugContext(ctx, "search failed", slog.String("field", q.Field), slog.Any("error", err))
		return nil, err
	}

	e.metrics.OnSearch(q.Field, q.K, resp.Path.String(), resp.Status.String(), elapsed, nil)
	e.logger.DebugContext(ctx, "search",
		slog.String("field", q.Field),
		slog.Int("k", q.K),
		slog.Int("hits", len(resp.Hits)),
		slog.String("path", resp.Path.String()),
		slog.String("status", resp.Status.String()),
		slog.Int("rounds", resp.Rounds),
		slog.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (e *Engine) search(ctx context.Context, q Query) (*Response, error) {
	if q.K <= 0 {
		return nil, index.ErrInvalidK
	}

	f, ok := e.lookup(q.Field)
	if !ok || f.graph.Len() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, q.Field)
	}
	if dim := f.store.Dimension(); len(q.Vector) != dim {
		return nil, &index.ErrDimensionMismatch{Expected: dim, Actual: len(q.Vector)}
	}
	if err := distance.Validate(q.Vector); err != nil {
		return nil, err
	}

	ef := q.EFSearch
	if ef <= 0 {
		ef = f.cfg.SearchEF()
	}

	mode := q.Mode
	if mode == ModeAuto && q.K >= f.graph.Len() {
		mode = ModeExact
	}

	if mode == ModeExact {
		var accept index.FilterFunc
		if q.Filter != nil {
			accept = q.Filter.Accepts
		}
		hits, err := f.graph.BruteSearch(ctx, q.Vector, q.K, accept)
		if err != nil {
			return nil, err
		}
		status := filter.StatusOK
		if len(hits) < q.K {
			status = filter.StatusFilterExhausted
		}
		return &Response{Hits: hits, Status: status, Path: filter.PathExact}, nil
	}

	res, err := e.coordinator.Search(ctx, f.graph, q.Vector, q.K, ef, q.Filter)
	if err != nil {
		return nil, err
	}
	return &Response{
		Hits:        res.Results,
		Status:      res.Status,
		Path:        res.Path,
		Rounds:      res.Rounds,
		EF:          res.EF,
		Selectivity: res.Selectivity,
	}, nil
}
