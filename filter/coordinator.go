package filter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/model"
)

// Status describes how complete a search result is.
type Status int

const (
	// StatusOK means k results were found.
	StatusOK Status = iota
	// StatusFilterExhausted means fewer than k results exist for the predicate.
	StatusFilterExhausted
	// StatusBudgetExceeded means fewer than k results were found before the
	// round or time budget ran out. More matches may exist.
	StatusBudgetExceeded
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFilterExhausted:
		return "filter_exhausted"
	case StatusBudgetExceeded:
		return "budget_exceeded"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Path names the search strategy that produced a result.
type Path int

const (
	// PathANN is the graph search.
	PathANN Path = iota
	// PathExact is the linear scan.
	PathExact
)

func (p Path) String() string {
	if p == PathExact {
		return "exact"
	}
	return "ann"
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Searcher is the index a Coordinator drives. *hnsw.HNSW implements it.
type Searcher interface {
	KNNSearch(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, index.SearchStats, error)
	BruteSearch(ctx context.Context, q []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error)
	Len() int
}

// Policy bounds the adaptive expansion of filtered searches.
type Policy struct {
	// GrowthFactor multiplies the beam width after a starved round.
	GrowthFactor float64
	// MaxRounds caps the number of graph searches per query.
	MaxRounds int
	// SelectivityThreshold sends predicates accepting a smaller fraction of
	// the corpus straight to the exact path.
	SelectivityThreshold float64
	// TimeBudget stops expansion once exceeded. Zero disables the check.
	TimeBudget time.Duration
	// SampleSize is the number of IDs probed to estimate the selectivity of
	// predicates that cannot count themselves.
	SampleSize int
	// ExactFallback scans the accepted IDs when the rounds run out or a
	// full-width beam leaves nodes unvisited.
	ExactFallback bool
}

// DefaultPolicy returns the default expansion policy.
func DefaultPolicy() Policy {
	return Policy{
		GrowthFactor:         2,
		MaxRounds:            4,
		SelectivityThreshold: 0.05,
		SampleSize:           256,
		ExactFallback:        true,
	}
}

// Result is the outcome of a coordinated search.
type Result struct {
	Results     []index.SearchResult
	Status      Status
	Path        Path
	Rounds      int
	EF          int
	Selectivity float64
}

// Coordinator runs predicate-aware searches under a Policy.
type Coordinator struct {
	policy Policy
	now    func() time.Time
}

// NewCoordinator creates a coordinator with the default policy adjusted by optFns.
func NewCoordinator(optFns ...func(p *Policy)) *Coordinator {
	p := DefaultPolicy()
	for _, fn := range optFns {
		fn(&p)
	}
	if p.GrowthFactor <= 1 {
		p.GrowthFactor = 2
	}
	if p.MaxRounds <= 0 {
		p.MaxRounds = 1
	}
	if p.SampleSize <= 0 {
		p.SampleSize = 256
	}
	return &Coordinator{policy: p, now: time.Now}
}

// Policy returns the effective policy.
func (c *Coordinator) Policy() Policy { return c.policy }

// Search returns up to k nearest neighbors of q accepted by pred.
// ef is the initial beam width; zero uses the searcher's default. A nil pred accepts everything.
func (c *Coordinator) Search(ctx context.Context, s Searcher, q []float32, k, ef int, pred Predicate) (*Result, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	n := s.Len()
	if n == 0 {
		return &Result{Status: StatusFilterExhausted, Selectivity: 1}, nil
	}

	var filter index.FilterFunc
	selectivity := 1.0
	if pred != nil {
		filter = pred.Accepts
		selectivity = c.estimateSelectivity(pred, n)
	}

	if filter != nil && selectivity < c.policy.SelectivityThreshold {
		return c.exact(ctx, s, q, k, filter, &Result{Selectivity: selectivity})
	}

	var deadline time.Time
	if c.policy.TimeBudget > 0 {
		deadline = c.now().Add(c.policy.TimeBudget)
	}

	out := &Result{Path: PathANN, Selectivity: selectivity}
	for out.Rounds < c.policy.MaxRounds {
		out.Rounds++

		res, stats, err := s.KNNSearch(ctx, q, k, &index.SearchOptions{EFSearch: ef, Filter: filter})
		if err != nil {
			return nil, err
		}
		out.Results = res
		out.EF = stats.EF

		if len(res) >= k {
			if stats.EF >= n && !stats.Exhaustive && c.policy.ExactFallback {
				// The beam covered the corpus yet missed unreachable nodes.
				return c.exact(ctx, s, q, k, filter, out)
			}
			out.Status = StatusOK
			return out, nil
		}
		if stats.Exhaustive {
			out.Status = StatusFilterExhausted
			return out, nil
		}
		if !deadline.IsZero() && !c.now().Before(deadline) {
			out.Status = StatusBudgetExceeded
			return out, nil
		}
		if stats.EF >= n {
			// A full-width beam that still missed nodes cannot do better.
			break
		}

		ef = min(int(math.Ceil(float64(stats.EF)*c.policy.GrowthFactor)), n)
	}

	if !c.policy.ExactFallback {
		out.Status = StatusBudgetExceeded
		return out, nil
	}

	return c.exact(ctx, s, q, k, filter, out)
}

func (c *Coordinator) exact(ctx context.Context, s Searcher, q []float32, k int, filter index.FilterFunc, out *Result) (*Result, error) {
	res, err := s.BruteSearch(ctx, q, k, filter)
	if err != nil {
		return nil, err
	}
	out.Results = res
	out.Path = PathExact
	if len(res) >= k {
		out.Status = StatusOK
	} else {
		out.Status = StatusFilterExhausted
	}
	return out, nil
}

// estimateSelectivity returns the accepted fraction of IDs in [0, n).
func (c *Coordinator) estimateSelectivity(pred Predicate, n int) float64 {
	if cnt, ok := pred.(Counter); ok {
		return math.Min(1, float64(cnt.Cardinality())/float64(n))
	}

	samples := min(c.policy.SampleSize, n)
	step := float64(n) / float64(samples)
	accepted := 0
	for i := 0; i < samples; i++ {
		if pred.Accepts(model.ID(int(float64(i) * step))) {
			accepted++
		}
	}
	return float64(accepted) / float64(samples)
}
