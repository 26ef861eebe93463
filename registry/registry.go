package registry

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index/hnsw"
)

var (
	// ErrConfigFrozen is returned when a different configuration is registered
	// for a field that already holds vectors.
	ErrConfigFrozen = errors.New("registry: field config is frozen")

	// ErrInvalidConfig is returned for out-of-range configuration values.
	ErrInvalidConfig = errors.New("registry: invalid field config")
)

// maxLevelCeiling bounds MaxLevel. Snapshots store levels in one byte.
const maxLevelCeiling = 64

// FieldConfig is the index configuration of one vector field.
type FieldConfig struct {
	Metric         distance.Metric `yaml:"metric" json:"metric"`
	M              int             `yaml:"m" json:"m"`
	EFConstruction int             `yaml:"ef_construction" json:"ef_construction"`
	// EFSearch is the default query beam width. Zero means EFConstruction.
	EFSearch int `yaml:"ef_search,omitempty" json:"ef_search,omitempty"`
	// MaxLevel caps node levels. Zero means hnsw.DefaultMaxLevel.
	MaxLevel int `yaml:"max_level,omitempty" json:"max_level,omitempty"`
	// Dimension fixes the vector length up front. Zero means the first vector decides.
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty"`
}

// DefaultFieldConfig returns the configuration of fields without an override.
func DefaultFieldConfig() FieldConfig {
	return FieldConfig{
		Metric:         distance.MetricEuclidean,
		M:              hnsw.DefaultM,
		EFConstruction: hnsw.DefaultEFConstruction,
	}
}

// Validate checks the configuration values.
func (c FieldConfig) Validate() error {
	if _, err := distance.Provider(c.Metric); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch {
	case c.M < 2:
		return fmt.Errorf("%w: m must be at least 2, got %d", ErrInvalidConfig, c.M)
	case c.EFConstruction < 1:
		return fmt.Errorf("%w: ef_construction must be positive, got %d", ErrInvalidConfig, c.EFConstruction)
	case c.EFSearch < 0:
		return fmt.Errorf("%w: ef_search must not be negative, got %d", ErrInvalidConfig, c.EFSearch)
	case c.MaxLevel < 0 || c.MaxLevel > maxLevelCeiling:
		return fmt.Errorf("%w: max_level must be in [0, %d], got %d", ErrInvalidConfig, maxLevelCeiling, c.MaxLevel)
	case c.Dimension < 0:
		return fmt.Errorf("%w: dimension must not be negative, got %d", ErrInvalidConfig, c.Dimension)
	}
	return nil
}

// SearchEF returns the effective default query beam width.
func (c FieldConfig) SearchEF() int {
	if c.EFSearch > 0 {
		return c.EFSearch
	}
	return c.EFConstruction
}

// HNSWOptions returns an option function applying c to a graph.
func (c FieldConfig) HNSWOptions() func(o *hnsw.Options) {
	return func(o *hnsw.Options) {
		o.M = c.M
		o.EFConstruction = c.EFConstruction
		o.EFSearch = c.EFSearch
		o.Metric = c.Metric
		if c.MaxLevel > 0 {
			o.MaxLevel = c.MaxLevel
		}
	}
}

// inherit fills zero values from base.
func (c FieldConfig) inherit(base FieldConfig, metricSet bool) FieldConfig {
	if !metricSet {
		c.Metric = base.Metric
	}
	if c.M == 0 {
		c.M = base.M
	}
	if c.EFConstruction == 0 {
		c.EFConstruction = base.EFConstruction
	}
	if c.EFSearch == 0 {
		c.EFSearch = base.EFSearch
	}
	if c.MaxLevel == 0 {
		c.MaxLevel = base.MaxLevel
	}
	return c
}

// Registry resolves field names to configurations.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	def    FieldConfig
	fields map[string]FieldConfig
	frozen map[string]FieldConfig
}

// New creates a registry whose unlisted fields use def.
func New(def FieldConfig) (*Registry, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		def:    def,
		fields: make(map[string]FieldConfig),
		frozen: make(map[string]FieldConfig),
	}, nil
}

// Must panics if err is non-nil and returns r otherwise.
func Must(r *Registry, err error) *Registry {
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the configuration of fields without an override.
func (r *Registry) Default() FieldConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Register sets the configuration of field. Registering the configuration a
// frozen field already uses is a no-op; any other value fails with ErrConfigFrozen.
func (r *Registry) Register(field string, cfg FieldConfig) error {
	if field == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("field %q: %w", field, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.frozen[field]; ok {
		if cur != cfg {
			return fmt.Errorf("%w: %q", ErrConfigFrozen, field)
		}
		return nil
	}
	r.fields[field] = cfg
	return nil
}

// Resolve returns the configuration field uses or would use.
func (r *Registry) Resolve(field string) FieldConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(field)
}

func (r *Registry) resolveLocked(field string) FieldConfig {
	if cfg, ok := r.frozen[field]; ok {
		return cfg
	}
	if cfg, ok := r.fields[field]; ok {
		return cfg
	}
	return r.def
}

// Explicit returns the registered override of field, if any.
func (r *Registry) Explicit(field string) (FieldConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.fields[field]
	return cfg, ok
}

// Freeze fixes the configuration of field and returns it.
// Freezing is idempotent.
func (r *Registry) Freeze(field string) FieldConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.resolveLocked(field)
	r.frozen[field] = cfg
	return cfg
}

// Install freezes field with a persisted configuration. It fails with
// ErrConfigFrozen when the field is already frozen differently.
func (r *Registry) Install(field string, cfg FieldConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("field %q: %w", field, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.frozen[field]; ok && cur != cfg {
		return fmt.Errorf("%w: %q", ErrConfigFrozen, field)
	}
	r.frozen[field] = cfg
	return nil
}

// IsFrozen reports whether field's configuration is fixed.
func (r *Registry) IsFrozen(field string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.frozen[field]
	return ok
}

// Fields returns the sorted names of all registered or frozen fields.
func (r *Registry) Fields() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fields)+len(r.frozen))
	for name := range r.fields {
		names = append(names, name)
	}
	for name := range r.frozen {
		if _, ok := r.fields[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// File is the YAML layout of a registry.
type File struct {
	Default *Entry           `yaml:"default,omitempty"`
	Fields  map[string]Entry `yaml:"fields,omitempty"`
}

// Entry is one configuration in a File. Zero values are inherited.
type Entry struct {
	Metric         *distance.Metric `yaml:"metric,omitempty"`
	M              int              `yaml:"m,omitempty"`
	EFConstruction int              `yaml:"ef_construction,omitempty"`
	EFSearch       int              `yaml:"ef_search,omitempty"`
	MaxLevel       int              `yaml:"max_level,omitempty"`
	Dimension      int              `yaml:"dimension,omitempty"`
}

func (e Entry) config(base FieldConfig) FieldConfig {
	cfg := FieldConfig{
		M:              e.M,
		EFConstruction: e.EFConstruction,
		EFSearch:       e.EFSearch,
		MaxLevel:       e.MaxLevel,
		Dimension:      e.Dimension,
	}
	if e.Metric != nil {
		cfg.Metric = *e.Metric
	}
	return cfg.inherit(base, e.Metric != nil)
}

// Build creates the registry f describes. Field entries inherit unset values
// from the default entry, which in turn inherits from DefaultFieldConfig.
func (f File) Build() (*Registry, error) {
	def := DefaultFieldConfig()
	if f.Default != nil {
		def = f.Default.config(def)
	}

	r, err := New(def)
	if err != nil {
		return nil, err
	}
	for name, entry := range f.Fields {
		if err := r.Register(name, entry.config(def)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}
	return f.Build()
}

// Load reads a YAML registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return Parse(data)
}
