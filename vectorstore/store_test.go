package vectorstore

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/model"
)

func TestStore_InsertAndGet(t *testing.T) {
	s := New(0)
	assert.Equal(t, 0, s.Dimension())
	assert.Equal(t, 0, s.Count())

	in := []float32{1, 2, 3}
	id, err := s.Insert(in)
	require.NoError(t, err)
	assert.Equal(t, model.ID(0), id)
	assert.Equal(t, 3, s.Dimension())

	in[0] = 42 // stored copy must not change

	v, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)

	id, err = s.Insert([]float32{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, model.ID(1), id)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, model.ID(2), s.NextID())

	_, ok = s.Get(2)
	assert.False(t, ok)
}

func TestStore_Rejects(t *testing.T) {
	s := New(3)

	tests := []struct {
		name string
		vec  []float32
		want func(error) bool
	}{
		{"Short", []float32{1, 2}, func(err error) bool {
			var dm *index.ErrDimensionMismatch
			return errors.As(err, &dm) && dm.Expected == 3 && dm.Actual == 2
		}},
		{"NaN", []float32{1, float32(math.NaN()), 3}, func(err error) bool {
			return errors.Is(err, distance.ErrInvalidVector)
		}},
		{"Inf", []float32{float32(math.Inf(-1)), 2, 3}, func(err error) bool {
			return errors.Is(err, distance.ErrInvalidVector)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Insert(tt.vec)
			require.Error(t, err)
			assert.True(t, tt.want(err), err.Error())
			assert.Equal(t, 0, s.Count())
		})
	}
}

func TestStore_All(t *testing.T) {
	s := New(2)
	for i := 0; i < 5; i++ {
		_, err := s.Insert([]float32{float32(i), float32(-i)})
		require.NoError(t, err)
	}

	var ids []model.ID
	for id, v := range s.All() {
		ids = append(ids, id)
		assert.Equal(t, float32(id), v[0])
	}
	assert.Equal(t, []model.ID{0, 1, 2, 3, 4}, ids)
}

func TestStore_Load(t *testing.T) {
	s, err := Load(2, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count())

	v, ok := s.Vector(1)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, v)

	_, err = Load(2, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := New(4)
	const n = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f := float32(i)
			_, err := s.Insert([]float32{f, f, f, f})
			assert.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				c := s.Count()
				if c == 0 {
					continue
				}
				id := model.ID(c - 1)
				v, ok := s.Vector(id)
				if assert.True(t, ok) {
					assert.Equal(t, float32(id), v[3])
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, n, s.Count())
}
