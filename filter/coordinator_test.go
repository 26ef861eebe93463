package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/index/hnsw"
	"github.com/hupe1980/hnswfield/model"
	"github.com/hupe1980/hnswfield/testutil"
	"github.com/hupe1980/hnswfield/vectorstore"
)

// starvedSearcher returns one accepted result per ten beam slots.
type starvedSearcher struct {
	n          int
	exhaustive bool
	calls      []int
	bruteCalls int
}

func (s *starvedSearcher) Len() int { return s.n }

func (s *starvedSearcher) KNNSearch(_ context.Context, _ []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, index.SearchStats, error) {
	ef := max(opts.EFSearch, k)
	s.calls = append(s.calls, ef)
	found := min(k, ef/10)
	res := make([]index.SearchResult, found)
	for i := range res {
		res[i] = index.SearchResult{ID: model.ID(i), Distance: float32(i)}
	}
	return res, index.SearchStats{EF: ef, Visited: ef, Exhaustive: s.exhaustive}, nil
}

func (s *starvedSearcher) BruteSearch(_ context.Context, _ []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error) {
	s.bruteCalls++
	var res []index.SearchResult
	for i := 0; i < s.n && len(res) < k; i++ {
		if filter == nil || filter(model.ID(i)) {
			res = append(res, index.SearchResult{ID: model.ID(i)})
		}
	}
	return res, nil
}

var half = Func(func(id model.ID) bool { return id%2 == 0 })

func TestCoordinator_GrowsBeam(t *testing.T) {
	s := &starvedSearcher{n: 1000}
	c := NewCoordinator()

	res, err := c.Search(context.Background(), s, []float32{0}, 10, 20, half)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, PathANN, res.Path)
	assert.Equal(t, 4, res.Rounds)
	assert.Equal(t, []int{20, 40, 80, 160}, s.calls)
	assert.Len(t, res.Results, 10)
	assert.Equal(t, 0, s.bruteCalls)
}

func TestCoordinator_RoundsExhausted(t *testing.T) {
	t.Run("ExactFallback", func(t *testing.T) {
		s := &starvedSearcher{n: 1000}
		c := NewCoordinator(func(p *Policy) { p.MaxRounds = 2 })

		res, err := c.Search(context.Background(), s, []float32{0}, 10, 20, half)
		require.NoError(t, err)
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, PathExact, res.Path)
		assert.Equal(t, 2, res.Rounds)
		assert.Equal(t, 1, s.bruteCalls)
		for _, r := range res.Results {
			assert.True(t, half(r.ID))
		}
	})

	t.Run("NoFallback", func(t *testing.T) {
		s := &starvedSearcher{n: 1000}
		c := NewCoordinator(func(p *Policy) {
			p.MaxRounds = 2
			p.ExactFallback = false
		})

		res, err := c.Search(context.Background(), s, []float32{0}, 10, 20, half)
		require.NoError(t, err)
		assert.Equal(t, StatusBudgetExceeded, res.Status)
		assert.Len(t, res.Results, 4)
		assert.Equal(t, 0, s.bruteCalls)
	})
}

func TestCoordinator_FullBeamMissingNodes(t *testing.T) {
	t.Run("ExactFallback", func(t *testing.T) {
		s := &starvedSearcher{n: 100}
		res, err := NewCoordinator().Search(context.Background(), s, []float32{0}, 5, 100, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, PathExact, res.Path)
		assert.Equal(t, 1, res.Rounds)
		assert.Equal(t, 1, s.bruteCalls)
		assert.Len(t, res.Results, 5)
	})

	t.Run("Exhaustive", func(t *testing.T) {
		s := &starvedSearcher{n: 100, exhaustive: true}
		res, err := NewCoordinator().Search(context.Background(), s, []float32{0}, 5, 100, nil)
		require.NoError(t, err)
		assert.Equal(t, PathANN, res.Path)
		assert.Equal(t, 0, s.bruteCalls)
	})

	t.Run("NoFallback", func(t *testing.T) {
		s := &starvedSearcher{n: 100}
		c := NewCoordinator(func(p *Policy) { p.ExactFallback = false })
		res, err := c.Search(context.Background(), s, []float32{0}, 5, 100, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, PathANN, res.Path)
		assert.Equal(t, 0, s.bruteCalls)
	})
}

func TestCoordinator_FullBeamMatchesExact(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(3)
	vecs := rng.UniformVectors(2000, 2)

	// A sparse graph leaves many nodes unreachable from the entry point.
	store := vectorstore.New(0)
	g, err := hnsw.New(store, func(o *hnsw.Options) { o.M = 2; o.EFConstruction = 2 })
	require.NoError(t, err)
	for _, v := range vecs {
		id, err := store.Insert(v)
		require.NoError(t, err)
		require.NoError(t, g.Insert(ctx, id, v))
	}

	c := NewCoordinator()
	for _, q := range rng.UniformVectors(20, 2) {
		res, err := c.Search(ctx, g, q, 10, len(vecs), nil)
		require.NoError(t, err)
		exact, err := g.BruteSearch(ctx, q, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, testutil.IDs(exact), testutil.IDs(res.Results))
		assert.Equal(t, StatusOK, res.Status)
	}
}

func TestCoordinator_TimeBudget(t *testing.T) {
	s := &starvedSearcher{n: 1000}
	c := NewCoordinator(func(p *Policy) { p.TimeBudget = 1500 * time.Millisecond })

	clock := time.Unix(0, 0)
	c.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	res, err := c.Search(context.Background(), s, []float32{0}, 10, 20, half)
	require.NoError(t, err)
	assert.Equal(t, StatusBudgetExceeded, res.Status)
	assert.Equal(t, 1, res.Rounds)
	assert.Len(t, res.Results, 2)
}

func TestCoordinator_Exhaustive(t *testing.T) {
	s := &starvedSearcher{n: 1000, exhaustive: true}
	res, err := NewCoordinator().Search(context.Background(), s, []float32{0}, 10, 20, half)
	require.NoError(t, err)
	assert.Equal(t, StatusFilterExhausted, res.Status)
	assert.Equal(t, 1, res.Rounds)
}

func TestCoordinator_LowSelectivityGoesExact(t *testing.T) {
	s := &starvedSearcher{n: 1000}
	pred := NewBitmap(1, 5, 9)

	res, err := NewCoordinator().Search(context.Background(), s, []float32{0}, 10, 0, pred)
	require.NoError(t, err)
	assert.Equal(t, PathExact, res.Path)
	assert.Equal(t, StatusFilterExhausted, res.Status)
	assert.Equal(t, []model.ID{1, 5, 9}, testutil.IDs(res.Results))
	assert.Equal(t, 0, res.Rounds)
	assert.Empty(t, s.calls)
	assert.InDelta(t, 0.003, res.Selectivity, 1e-9)
}

func TestCoordinator_ZeroAcceptingPredicate(t *testing.T) {
	for name, pred := range map[string]Predicate{
		"Func":   Func(func(model.ID) bool { return false }),
		"Bitmap": None(),
	} {
		t.Run(name, func(t *testing.T) {
			s := &starvedSearcher{n: 1000}
			res, err := NewCoordinator().Search(context.Background(), s, []float32{0}, 5, 0, pred)
			require.NoError(t, err)
			assert.Empty(t, res.Results)
			assert.Equal(t, StatusFilterExhausted, res.Status)
		})
	}
}

func TestCoordinator_EmptyIndexAndInvalidK(t *testing.T) {
	s := &starvedSearcher{}
	res, err := NewCoordinator().Search(context.Background(), s, []float32{0}, 5, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFilterExhausted, res.Status)

	_, err = NewCoordinator().Search(context.Background(), s, []float32{0}, 0, 0, nil)
	assert.ErrorIs(t, err, index.ErrInvalidK)
}

func TestCoordinator_SampledSelectivity(t *testing.T) {
	c := NewCoordinator()
	quarter := Func(func(id model.ID) bool { return id%4 == 0 })
	assert.InDelta(t, 0.25, c.estimateSelectivity(quarter, 1000), 0.05)
	assert.Equal(t, 1.0, c.estimateSelectivity(All(), 1000))
}

func TestCoordinator_WithGraph(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(17)
	vecs := rng.UniformVectors(500, 8)

	store := vectorstore.New(0)
	g, err := hnsw.New(store, func(o *hnsw.Options) { o.M = 8; o.EFConstruction = 64 })
	require.NoError(t, err)
	for _, v := range vecs {
		id, err := store.Insert(v)
		require.NoError(t, err)
		require.NoError(t, g.Insert(ctx, id, v))
	}

	// Accept every tenth vector: selective, but above the exact threshold.
	pred := NewBitmap()
	for i := 0; i < len(vecs); i += 10 {
		pred.Add(model.ID(i))
	}

	q := rng.UniformVectors(1, 8)[0]
	res, err := NewCoordinator().Search(ctx, g, q, 5, 10, pred)
	require.NoError(t, err)
	require.Len(t, res.Results, 5)
	assert.Equal(t, StatusOK, res.Status)
	for _, r := range res.Results {
		assert.True(t, pred.Accepts(r.ID))
	}

	exact, err := g.BruteSearch(ctx, q, 5, pred.Accepts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, testutil.ComputeRecall(exact, res.Results), 0.8)
}

func TestPredicates(t *testing.T) {
	a := NewBitmap(1, 2, 3, 4)
	b := NewBitmap(3, 4, 5)
	even := Func(func(id model.ID) bool { return id%2 == 0 })

	both := And(a, b)
	assert.False(t, both.Accepts(1))
	assert.True(t, both.Accepts(3))
	assert.Equal(t, uint64(2), both.(*Bitmap).Cardinality())

	mixed := And(a, b, even)
	assert.False(t, mixed.Accepts(3))
	assert.True(t, mixed.Accepts(4))

	assert.True(t, Not(a).Accepts(7))
	assert.False(t, Not(a).Accepts(1))
	assert.True(t, All().Accepts(123))
	assert.False(t, None().Accepts(0))
	assert.True(t, And().Accepts(9))

	var ids []model.ID
	for id := range b.IDs() {
		ids = append(ids, id)
	}
	assert.Equal(t, []model.ID{3, 4, 5}, ids)
}
