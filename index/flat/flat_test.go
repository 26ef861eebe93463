package flat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/model"
	"github.com/hupe1980/hnswfield/vectorstore"
)

func newStore(t *testing.T, vecs ...[]float32) *vectorstore.Store {
	t.Helper()
	s := vectorstore.New(0)
	for _, v := range vecs {
		_, err := s.Insert(v)
		require.NoError(t, err)
	}
	return s
}

func TestFlat_KNNSearch(t *testing.T) {
	s := newStore(t,
		[]float32{0, 0},
		[]float32{1, 0},
		[]float32{5, 5},
		[]float32{0, 2},
		[]float32{-3, 0},
	)
	f, err := New(s, distance.MetricEuclidean)
	require.NoError(t, err)

	tests := []struct {
		name   string
		k      int
		filter index.FilterFunc
		want   []model.ID
	}{
		{"Top1", 1, nil, []model.ID{0}},
		{"Top3", 3, nil, []model.ID{0, 1, 3}},
		{"KLargerThanCorpus", 10, nil, []model.ID{0, 1, 3, 4, 2}},
		{"Filtered", 2, func(id model.ID) bool { return id%2 == 0 }, []model.ID{0, 4}},
		{"FilterNone", 3, func(model.ID) bool { return false }, []model.ID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.KNNSearch(context.Background(), []float32{0, 0}, tt.k, tt.filter)
			require.NoError(t, err)

			ids := make([]model.ID, len(res))
			for i, r := range res {
				ids[i] = r.ID
			}
			assert.Equal(t, tt.want, ids)

			for i := 1; i < len(res); i++ {
				assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
			}
		})
	}
}

func TestFlat_TiesOrderedByID(t *testing.T) {
	s := newStore(t, []float32{1, 0}, []float32{0, 1}, []float32{-1, 0})
	res, err := Search(context.Background(), s, distance.Euclidean, []float32{0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, model.ID(0), res[0].ID)
	assert.Equal(t, model.ID(1), res[1].ID)
}

func TestFlat_Errors(t *testing.T) {
	s := newStore(t, []float32{1, 0})
	f, err := New(s, distance.MetricCosine)
	require.NoError(t, err)

	_, err = f.KNNSearch(context.Background(), []float32{1, 0}, 0, nil)
	assert.ErrorIs(t, err, index.ErrInvalidK)

	_, err = f.KNNSearch(context.Background(), []float32{1, 0, 0}, 1, nil)
	var dm *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.KNNSearch(ctx, []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
