package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/filter"
	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/model"
	"github.com/hupe1980/hnswfield/registry"
	"github.com/hupe1980/hnswfield/testutil"
)

const descriptionField = "description_vector"

func bookRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.DefaultFieldConfig())
	require.NoError(t, err)
	require.NoError(t, reg.Register(descriptionField, registry.FieldConfig{
		Metric:         distance.MetricEuclidean,
		M:              32,
		EFConstruction: 150,
	}))
	return reg
}

func loadBooks(t *testing.T, e *Engine, field string) []testutil.Book {
	t.Helper()
	books := testutil.Books()
	for i, b := range books {
		id, err := e.Insert(context.Background(), field, b.Vector)
		require.NoError(t, err)
		require.Equal(t, model.ID(i), id)
	}
	return books
}

func names(books []testutil.Book, hits []index.SearchResult) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = books[h.ID].Name
	}
	return out
}

func TestEngine_BookScenario(t *testing.T) {
	ctx := context.Background()
	e := New(bookRegistry(t))
	books := loadBooks(t, e, descriptionField)

	top3 := []string{
		"The Hitchhiker's Guide to the Galaxy",
		"The Three-Body Problem",
		"The Andromeda Strain",
	}

	exact, err := e.Search(ctx, Query{Field: descriptionField, Vector: testutil.AlienInvasion, K: len(books)})
	require.NoError(t, err)
	assert.Equal(t, filter.PathExact, exact.Path)
	assert.Equal(t, filter.StatusOK, exact.Status)
	require.Len(t, exact.Hits, len(books))
	assert.Equal(t, top3, names(books, exact.Hits[:3]))
	for i := 1; i < len(exact.Hits); i++ {
		assert.LessOrEqual(t, exact.Hits[i-1].Distance, exact.Hits[i].Distance)
	}

	ann, err := e.Search(ctx, Query{Field: descriptionField, Vector: testutil.AlienInvasion, K: len(books) - 1})
	require.NoError(t, err)
	assert.Equal(t, filter.PathANN, ann.Path)
	assert.Equal(t, filter.StatusOK, ann.Status)
	require.Len(t, ann.Hits, len(books)-1)
	assert.Equal(t, top3, names(books, ann.Hits[:3]))
	assert.Equal(t, exact.Hits[:len(books)-1], ann.Hits)

	k3, err := e.Search(ctx, Query{Field: descriptionField, Vector: testutil.AlienInvasion, K: 3})
	require.NoError(t, err)
	assert.Equal(t, top3, names(books, k3.Hits))

	wantDistances := []float64{0.469, 0.5196, 0.5831}
	for i, want := range wantDistances {
		assert.InDelta(t, want, k3.Hits[i].Distance, 1e-3)
	}
}

func TestEngine_BookScenario_YearFilter(t *testing.T) {
	ctx := context.Background()
	e := New(bookRegistry(t))
	books := loadBooks(t, e, descriptionField)

	recent := filter.NewBitmap()
	for i, b := range books {
		if b.Year >= 2000 {
			recent.Add(model.ID(i))
		}
	}

	for _, mode := range []Mode{ModeAuto, ModeANN, ModeExact} {
		t.Run(mode.String(), func(t *testing.T) {
			resp, err := e.Search(ctx, Query{
				Field:  descriptionField,
				Vector: testutil.AlienInvasion,
				K:      3,
				Filter: recent,
				Mode:   mode,
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"The Three-Body Problem", "The Hunger Games"}, names(books, resp.Hits))
			assert.Equal(t, filter.StatusFilterExhausted, resp.Status)
		})
	}
}

func TestEngine_BookScenario_Subset(t *testing.T) {
	e := New(nil)
	books := testutil.Books()[:3]
	for _, b := range books {
		_, err := e.Insert(context.Background(), "v", b.Vector)
		require.NoError(t, err)
	}

	resp, err := e.Search(context.Background(), Query{Field: "v", Vector: testutil.AlienInvasion, K: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ender's Game"}, names(books, resp.Hits))
}

func TestEngine_DistinctTopology(t *testing.T) {
	ctx := context.Background()
	e := New(bookRegistry(t))

	rng := testutil.NewRNG(3)
	vecs := rng.UniformVectors(400, 8)
	for _, v := range vecs {
		_, err := e.Insert(ctx, descriptionField, v)
		require.NoError(t, err)
		_, err = e.Insert(ctx, "default_vector", v)
		require.NoError(t, err)
	}

	require.NoError(t, e.Validate())

	stats := e.Stats()
	require.Len(t, stats, 2)
	byName := map[string]FieldStats{stats[0].Field: stats[0], stats[1].Field: stats[1]}
	custom, def := byName[descriptionField], byName["default_vector"]

	assert.Equal(t, 32, custom.Config.M)
	assert.Equal(t, 150, custom.Config.EFConstruction)
	assert.Equal(t, 64, custom.Graph.MaxConnections0)
	assert.Equal(t, 16, def.Config.M)
	assert.Equal(t, 100, def.Config.EFConstruction)
	assert.Equal(t, 32, def.Graph.MaxConnections0)

	customSnap, err := e.Snapshot(descriptionField)
	require.NoError(t, err)
	defSnap, err := e.Snapshot("default_vector")
	require.NoError(t, err)
	assert.Equal(t, customSnap.Vectors, defSnap.Vectors)
	assert.NotEqual(t, customSnap.Graph, defSnap.Graph)

	// Both agree with exact search once the beam covers the corpus.
	for i := 0; i < 10; i++ {
		q := rng.UniformVectors(1, 8)[0]
		for _, field := range []string{descriptionField, "default_vector"} {
			exact, err := e.Search(ctx, Query{Field: field, Vector: q, K: 10, Mode: ModeExact})
			require.NoError(t, err)
			ann, err := e.Search(ctx, Query{Field: field, Vector: q, K: 10, EFSearch: len(vecs), Mode: ModeANN})
			require.NoError(t, err)
			assert.Equal(t, exact.Hits, ann.Hits, field)
		}
	}
}

func TestEngine_Errors(t *testing.T) {
	ctx := context.Background()
	e := New(bookRegistry(t))
	loadBooks(t, e, descriptionField)

	tests := []struct {
		name  string
		query Query
		check func(t *testing.T, err error)
	}{
		{
			name:  "unknown field",
			query: Query{Field: "missing", Vector: testutil.AlienInvasion, K: 3},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnknownField) },
		},
		{
			name:  "dimension mismatch",
			query: Query{Field: descriptionField, Vector: []float32{1, 2}, K: 3},
			check: func(t *testing.T, err error) {
				var dm *index.ErrDimensionMismatch
				require.ErrorAs(t, err, &dm)
				assert.Equal(t, 8, dm.Expected)
				assert.Equal(t, 2, dm.Actual)
			},
		},
		{
			name:  "nan query",
			query: Query{Field: descriptionField, Vector: []float32{float32(math.NaN()), 0, 0, 0, 0, 0, 0, 0}, K: 3},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, distance.ErrInvalidVector) },
		},
		{
			name:  "zero k",
			query: Query{Field: descriptionField, Vector: testutil.AlienInvasion},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, index.ErrInvalidK) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(ctx, tt.query)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestEngine_FailedInsertLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	e := New(bookRegistry(t))
	loadBooks(t, e, descriptionField)
	before, err := e.Snapshot(descriptionField)
	require.NoError(t, err)

	_, err = e.Insert(ctx, descriptionField, []float32{1, 2, 3})
	var dm *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)

	_, err = e.Insert(ctx, descriptionField, []float32{0, 0, float32(math.Inf(1)), 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, distance.ErrInvalidVector)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Insert(cancelled, descriptionField, testutil.AlienInvasion)
	assert.ErrorIs(t, err, context.Canceled)

	after, err := e.Snapshot(descriptionField)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.NoError(t, e.Validate())
}

func TestEngine_InvalidFirstInsertDoesNotCreateField(t *testing.T) {
	e := New(nil)
	_, err := e.Insert(context.Background(), "v", []float32{float32(math.NaN())})
	assert.ErrorIs(t, err, distance.ErrInvalidVector)
	assert.Empty(t, e.Fields())
	assert.False(t, e.Registry().IsFrozen("v"))

	reg, err := registry.New(registry.DefaultFieldConfig())
	require.NoError(t, err)
	require.NoError(t, reg.Register("fixed", registry.FieldConfig{Metric: distance.MetricCosine, M: 8, EFConstruction: 32, Dimension: 4}))
	e = New(reg)
	_, err = e.Insert(context.Background(), "fixed", []float32{1, 2, 3})
	var dm *index.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
}

func TestEngine_CancelledFirstInsertDoesNotCreateField(t *testing.T) {
	e := New(nil)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Insert(cancelled, "fresh", testutil.AlienInvasion)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.Fields())
	assert.False(t, e.Registry().IsFrozen("fresh"))

	_, err = e.Search(context.Background(), Query{Field: "fresh", Vector: testutil.AlienInvasion, K: 3})
	assert.ErrorIs(t, err, ErrUnknownField)

	id, err := e.Insert(context.Background(), "fresh", testutil.AlienInvasion)
	require.NoError(t, err)
	assert.Equal(t, model.ID(0), id)
	assert.Equal(t, []string{"fresh"}, e.Fields())
	assert.True(t, e.Registry().IsFrozen("fresh"))
}

func TestEngine_ConfigFrozenOnFirstInsert(t *testing.T) {
	e := New(bookRegistry(t))
	reg := e.Registry()

	changed := registry.FieldConfig{Metric: distance.MetricEuclidean, M: 8, EFConstruction: 50}
	require.NoError(t, reg.Register(descriptionField, changed))
	require.NoError(t, reg.Register(descriptionField, registry.FieldConfig{Metric: distance.MetricEuclidean, M: 32, EFConstruction: 150}))

	_, err := e.Insert(context.Background(), descriptionField, testutil.AlienInvasion)
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Register(descriptionField, changed), registry.ErrConfigFrozen)
	assert.Equal(t, 32, e.Stats()[0].Config.M)
}

func TestEngine_ZeroAcceptingPredicate(t *testing.T) {
	e := New(bookRegistry(t))
	loadBooks(t, e, descriptionField)

	for _, pred := range []filter.Predicate{filter.None(), filter.Func(func(model.ID) bool { return false })} {
		resp, err := e.Search(context.Background(), Query{Field: descriptionField, Vector: testutil.AlienInvasion, K: 3, Filter: pred})
		require.NoError(t, err)
		assert.Empty(t, resp.Hits)
		assert.Equal(t, filter.StatusFilterExhausted, resp.Status)
	}
}

func TestEngine_Vector(t *testing.T) {
	e := New(nil)
	books := loadBooks(t, e, "v")

	v, err := e.Vector("v", 3)
	require.NoError(t, err)
	assert.Equal(t, books[3].Vector, v)

	v[0] = 42
	again, err := e.Vector("v", 3)
	require.NoError(t, err)
	assert.Equal(t, books[3].Vector, again)

	_, err = e.Vector("v", 99)
	var nf *index.ErrNodeNotFound
	assert.ErrorAs(t, err, &nf)

	_, err = e.Vector("other", 0)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestEngine_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	src := New(bookRegistry(t))
	loadBooks(t, src, descriptionField)

	snap, err := src.Snapshot(descriptionField)
	require.NoError(t, err)

	dst := New(nil)
	require.NoError(t, dst.RestoreField(snap))
	assert.True(t, dst.Registry().IsFrozen(descriptionField))
	assert.Equal(t, 32, dst.Registry().Resolve(descriptionField).M)

	q := Query{Field: descriptionField, Vector: testutil.AlienInvasion, K: 5}
	want, err := src.Search(ctx, q)
	require.NoError(t, err)
	got, err := dst.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, want.Hits, got.Hits)

	assert.ErrorIs(t, dst.RestoreField(snap), ErrFieldExists)

	// The restored field keeps accepting inserts.
	id, err := dst.Insert(ctx, descriptionField, testutil.AlienInvasion)
	require.NoError(t, err)
	assert.Equal(t, model.ID(13), id)
	require.NoError(t, dst.Validate())

	_, err = src.Snapshot("missing")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestEngine_Concurrent(t *testing.T) {
	ctx := context.Background()
	e := New(nil)
	rng := testutil.NewRNG(11)
	vecs := rng.UniformVectors(600, 16)
	queries := rng.UniformVectors(20, 16)

	_, err := e.Insert(ctx, "v", vecs[0])
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1 + w; i < len(vecs); i += 3 {
				_, err := e.Insert(ctx, "v", vecs[i])
				assert.NoError(t, err)
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				resp, err := e.Search(ctx, Query{Field: "v", Vector: queries[i%len(queries)], K: 5, Mode: ModeANN})
				if assert.NoError(t, err) {
					assert.LessOrEqual(t, len(resp.Hits), 5)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(vecs), e.Len("v"))
	require.NoError(t, e.Validate())
}

type countingObserver struct {
	inserts, searches, failures atomic.Int64
}

func (o *countingObserver) OnInsert(_ string, _ time.Duration, err error) {
	o.inserts.Add(1)
	if err != nil {
		o.failures.Add(1)
	}
}

func (o *countingObserver) OnSearch(_ string, _ int, _, _ string, _ time.Duration, err error) {
	o.searches.Add(1)
	if err != nil {
		o.failures.Add(1)
	}
}

func TestEngine_MetricsObserver(t *testing.T) {
	obs := &countingObserver{}
	e := New(nil, WithMetricsObserver(obs), WithFilterPolicy(func(p *filter.Policy) { p.MaxRounds = 2 }))
	loadBooks(t, e, "v")

	_, _ = e.Search(context.Background(), Query{Field: "v", Vector: testutil.AlienInvasion, K: 3})
	_, _ = e.Search(context.Background(), Query{Field: "missing", Vector: testutil.AlienInvasion, K: 3})

	assert.Equal(t, int64(13), obs.inserts.Load())
	assert.Equal(t, int64(2), obs.searches.Load())
	assert.Equal(t, int64(1), obs.failures.Load())
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeAuto, ModeANN, ModeExact} {
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseMode("fuzzy")
	assert.Error(t, err)
}
