package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/hnswfield/filter"
	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/index/hnsw"
	"github.com/hupe1980/hnswfield/model"
	"github.com/hupe1980/hnswfield/registry"
	"github.com/hupe1980/hnswfield/vectorstore"
)

// Engine holds the indexes of all vector fields.
type Engine struct {
	registry    *registry.Registry
	coordinator *filter.Coordinator
	logger      *slog.Logger
	metrics     MetricsObserver

	mu     sync.RWMutex
	fields map[string]*field
}

type field struct {
	name  string
	cfg   registry.FieldConfig
	store *vectorstore.Store
	graph *hnsw.HNSW

	// mu serializes writers. Readers never take it.
	mu sync.Mutex
}

// New creates an engine resolving field configurations through reg.
// A nil registry uses registry defaults for every field.
func New(reg *registry.Registry, opts ...Option) *Engine {
	if reg == nil {
		reg = registry.Must(registry.New(registry.DefaultFieldConfig()))
	}
	e := &Engine{
		registry:    reg,
		coordinator: filter.NewCoordinator(),
		logger:      slog.New(slog.DiscardHandler),
		metrics:     NoopMetricsObserver{},
		fields:      make(map[string]*field),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine resolves field configurations from.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Fields returns the sorted names of all populated fields.
func (e *Engine) Fields() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (e *Engine) lookup(name string) (*field, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.fields[name]
	return f, ok
}

func newField(name string, cfg registry.FieldConfig, store *vectorstore.Store, st *hnsw.GraphState) (*field, error) {
	var (
		g   *hnsw.HNSW
		err error
	)
	if st != nil {
		g, err = hnsw.Restore(store, st, cfg.HNSWOptions())
	} else {
		g, err = hnsw.New(store, cfg.HNSWOptions())
	}
	if err != nil {
		return nil, err
	}
	return &field{name: name, cfg: cfg, store: store, graph: g}, nil
}

// Insert stores vec in the named field and links it into the field's graph.
// It returns the vector's ID. A failed insert leaves no vector and no edges.
func (e *Engine) Insert(ctx context.Context, name string, vec []float32) (model.ID, error) {
	start := time.Now()
	id, err := e.insert(ctx, name, vec)
	e.metrics.OnInsert(name, time.Since(start), err)
	if err != nil {
		e.logger.DebugContext(ctx, "insert failed", slog.String("field", name), slog.Any("error", err))
	}
	return id, err
}

func (e *Engine) insert(ctx context.Context, name string, vec []float32) (model.ID, error) {
	if f, ok := e.lookup(name); ok {
		return f.insert(ctx, vec)
	}
	return e.insertFirst(ctx, name, vec)
}

// insertFirst builds a new field privately and publishes it, freezing its
// configuration, only once the first vector is linked.
func (e *Engine) insertFirst(ctx context.Context, name string, vec []float32) (model.ID, error) {
	e.mu.Lock()
	if f, ok := e.fields[name]; ok {
		e.mu.Unlock()
		return f.insert(ctx, vec)
	}
	defer e.mu.Unlock()

	cfg := e.registry.Resolve(name)
	f, err := newField(name, cfg, vectorstore.New(cfg.Dimension), nil)
	if err != nil {
		return 0, err
	}
	id, err := f.insert(ctx, vec)
	if err != nil {
		return 0, err
	}

	if err := e.registry.Install(name, cfg); err != nil {
		return 0, err
	}
	e.fields[name] = f

	e.logger.Debug("field created",
		slog.String("field", name),
		slog.String("metric", cfg.Metric.String()),
		slog.Int("m", cfg.M),
		slog.Int("ef_construction", cfg.EFConstruction),
	)
	return id, nil
}

func (f *field) insert(ctx context.Context, vec []float32) (model.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.store.Check(vec); err != nil {
		return 0, err
	}

	id := f.store.NextID()
	plan, err := f.graph.PlanInsert(ctx, id, vec)
	if err != nil {
		return 0, err
	}

	stored, err := f.store.Insert(vec)
	if err != nil {
		return 0, err
	}
	if stored != id {
		return 0, fmt.Errorf("engine: store assigned id %d, graph planned %d", uint32(stored), uint32(id))
	}

	if err := f.graph.Apply(plan); err != nil {
		return 0, err
	}
	return id, nil
}

// Vector returns a copy of the stored vector.
func (e *Engine) Vector(name string, id model.ID) ([]float32, error) {
	f, ok := e.lookup(name)
	if !ok {
		return nil, ErrUnknownField
	}
	v, ok := f.store.Get(id)
	if !ok {
		return nil, &index.ErrNodeNotFound{ID: id}
	}
	return slices.Clone(v), nil
}

// Len returns the number of vectors in the named field.
func (e *Engine) Len(name string) int {
	f, ok := e.lookup(name)
	if !ok {
		return 0
	}
	return f.graph.Len()
}

// FieldStats describes one field.
type FieldStats struct {
	Field     string
	Config    registry.FieldConfig
	Dimension int
	Vectors   int
	Graph     hnsw.Stats
}

// Stats returns statistics for every populated field, sorted by name.
func (e *Engine) Stats() []FieldStats {
	names := e.Fields()
	out := make([]FieldStats, 0, len(names))
	for _, name := range names {
		f, ok := e.lookup(name)
		if !ok {
			continue
		}
		out = append(out, FieldStats{
			Field:     name,
			Config:    f.cfg,
			Dimension: f.store.Dimension(),
			Vectors:   f.store.Count(),
			Graph:     f.graph.Stats(),
		})
	}
	return out
}

// Validate checks the structural invariants of every field's graph.
func (e *Engine) Validate() error {
	for _, name := range e.Fields() {
		if f, ok := e.lookup(name); ok {
			if err := f.graph.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}
