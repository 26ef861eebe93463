package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index/hnsw"
)

func TestDefaultFieldConfig(t *testing.T) {
	cfg := DefaultFieldConfig()
	assert.Equal(t, distance.MetricEuclidean, cfg.Metric)
	assert.Equal(t, 16, cfg.M)
	assert.Equal(t, 100, cfg.EFConstruction)
	assert.Equal(t, 100, cfg.SearchEF())
	require.NoError(t, cfg.Validate())
}

func TestFieldConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *FieldConfig)
		ok     bool
	}{
		{"default", func(*FieldConfig) {}, true},
		{"m too small", func(c *FieldConfig) { c.M = 1 }, false},
		{"zero ef construction", func(c *FieldConfig) { c.EFConstruction = 0 }, false},
		{"negative ef search", func(c *FieldConfig) { c.EFSearch = -1 }, false},
		{"negative max level", func(c *FieldConfig) { c.MaxLevel = -2 }, false},
		{"negative dimension", func(c *FieldConfig) { c.Dimension = -8 }, false},
		{"unknown metric", func(c *FieldConfig) { c.Metric = distance.Metric(42) }, false},
		{"cosine", func(c *FieldConfig) { c.Metric = distance.MetricCosine }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFieldConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestFieldConfig_HNSWOptions(t *testing.T) {
	cfg := FieldConfig{Metric: distance.MetricCosine, M: 32, EFConstruction: 150, EFSearch: 50}
	opts := hnsw.DefaultOptions
	cfg.HNSWOptions()(&opts)

	assert.Equal(t, 32, opts.M)
	assert.Equal(t, 150, opts.EFConstruction)
	assert.Equal(t, 50, opts.EFSearch)
	assert.Equal(t, distance.MetricCosine, opts.Metric)
	assert.Equal(t, hnsw.DefaultMaxLevel, opts.MaxLevel)
	assert.Equal(t, 50, cfg.SearchEF())
}

func TestRegistry_ResolveAndFreeze(t *testing.T) {
	r, err := New(DefaultFieldConfig())
	require.NoError(t, err)

	custom := FieldConfig{Metric: distance.MetricEuclidean, M: 32, EFConstruction: 150}
	require.NoError(t, r.Register("description_vector", custom))

	assert.Equal(t, custom, r.Resolve("description_vector"))
	assert.Equal(t, DefaultFieldConfig(), r.Resolve("title_vector"))

	frozen := r.Freeze("description_vector")
	assert.Equal(t, custom, frozen)
	assert.True(t, r.IsFrozen("description_vector"))
	assert.False(t, r.IsFrozen("title_vector"))

	// Re-registering the same value is fine.
	require.NoError(t, r.Register("description_vector", custom))

	changed := custom
	changed.M = 8
	err = r.Register("description_vector", changed)
	assert.ErrorIs(t, err, ErrConfigFrozen)
	assert.Equal(t, custom, r.Resolve("description_vector"))

	// Unregistered fields freeze with the default.
	assert.Equal(t, DefaultFieldConfig(), r.Freeze("title_vector"))
	err = r.Register("title_vector", custom)
	assert.ErrorIs(t, err, ErrConfigFrozen)

	assert.Equal(t, []string{"description_vector", "title_vector"}, r.Fields())
}

func TestRegistry_Install(t *testing.T) {
	r, err := New(DefaultFieldConfig())
	require.NoError(t, err)

	persisted := FieldConfig{Metric: distance.MetricDotProduct, M: 8, EFConstruction: 40, Dimension: 4}
	require.NoError(t, r.Install("f", persisted))
	assert.True(t, r.IsFrozen("f"))
	assert.Equal(t, persisted, r.Resolve("f"))

	require.NoError(t, r.Install("f", persisted))
	assert.ErrorIs(t, r.Install("f", DefaultFieldConfig()), ErrConfigFrozen)
}

func TestRegistry_InvalidInput(t *testing.T) {
	_, err := New(FieldConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	r, err := New(DefaultFieldConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, r.Register("", DefaultFieldConfig()), ErrInvalidConfig)
	assert.ErrorIs(t, r.Register("f", FieldConfig{M: 16}), ErrInvalidConfig)
}

func TestMust(t *testing.T) {
	reg := Must(New(DefaultFieldConfig()))
	assert.Equal(t, DefaultFieldConfig(), reg.Default())

	assert.Panics(t, func() { Must(New(FieldConfig{M: 1})) })
}

func TestRegistry_Concurrent(t *testing.T) {
	r, err := New(DefaultFieldConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Register("f", DefaultFieldConfig())
				_ = r.Resolve("f")
				_ = r.Freeze("f")
			}
		}()
	}
	wg.Wait()
	assert.True(t, r.IsFrozen("f"))
}

func TestParse(t *testing.T) {
	r, err := Load("testdata/books.yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultFieldConfig(), r.Default())
	assert.Equal(t, FieldConfig{Metric: distance.MetricEuclidean, M: 32, EFConstruction: 150}, r.Resolve("description_vector"))

	title := r.Resolve("title_vector")
	assert.Equal(t, distance.MetricCosine, title.Metric)
	assert.Equal(t, 16, title.M)
	assert.Equal(t, 100, title.EFConstruction)
	assert.Equal(t, 40, title.SearchEF())
	assert.Equal(t, 8, title.Dimension)

	assert.Equal(t, DefaultFieldConfig(), r.Resolve("other"))
}

func TestParse_DefaultOverride(t *testing.T) {
	r, err := Parse([]byte(`
default:
  metric: dot
  m: 8
fields:
  a:
    ef_construction: 20
`))
	require.NoError(t, err)

	def := r.Default()
	assert.Equal(t, distance.MetricDotProduct, def.Metric)
	assert.Equal(t, 8, def.M)
	assert.Equal(t, 100, def.EFConstruction)

	a := r.Resolve("a")
	assert.Equal(t, distance.MetricDotProduct, a.Metric)
	assert.Equal(t, 8, a.M)
	assert.Equal(t, 20, a.EFConstruction)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":   "default: [",
		"bad metric": "default:\n  metric: manhattan\n",
		"bad m":      "fields:\n  a:\n    m: 1\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Load("testdata/missing.yaml")
	assert.Error(t, err)
}
