// Package hnsw implements the Hierarchical Navigable Small World (HNSW) graph for approximate nearest neighbor search.
//
// Every node owns one immutable neighbor list per layer. A writer never edits a
// list in place: it builds the replacement and publishes it with an atomic
// pointer swap, so readers traverse without locks and only ever see a complete
// old list or a complete new one.
package hnsw

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/internal/queue"
	"github.com/hupe1980/hnswfield/internal/visited"
	"github.com/hupe1980/hnswfield/model"
)

const (
	// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// DefaultM is the default number of bidirectional links.
	DefaultM = 16

	// DefaultEFConstruction is the default beam width used while building.
	DefaultEFConstruction = 100

	// DefaultMaxLevel caps the drawn level of any node.
	DefaultMaxLevel = 16
)

// ErrStalePlan is returned by Apply when the graph changed after the plan was computed.
var ErrStalePlan = errors.New("hnsw: insert plan is stale")

// Options represents the options for configuring HNSW.
type Options struct {
	// M bounds the neighbor lists: 2*M on layer 0, M above.
	M int
	// EFConstruction is the beam width used while linking new nodes.
	EFConstruction int
	// EFSearch is the default layer-0 beam width for queries. Zero falls back to EFConstruction.
	EFSearch int
	// MaxLevel caps the drawn level of a node.
	MaxLevel int
	// Metric selects the distance function.
	Metric distance.Metric
	// Heuristic enables diversity-aware neighbor selection. When false the M
	// closest candidates are kept.
	Heuristic bool
	// RandomSeed makes level assignment reproducible.
	RandomSeed *int64
}

// DefaultOptions contains the default HNSW configuration.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	MaxLevel:       DefaultMaxLevel,
	Metric:         distance.MetricEuclidean,
	Heuristic:      true,
}

type entryPoint struct {
	id    model.ID
	level int
}

type node struct {
	level  int
	layers []atomic.Pointer[[]model.ID]
}

func newNode(level int) *node {
	return &node{level: level, layers: make([]atomic.Pointer[[]model.ID], level+1)}
}

func (n *node) neighbors(layer int) []model.ID {
	if layer > n.level {
		return nil
	}
	p := n.layers[layer].Load()
	if p == nil {
		return nil
	}
	return *p
}

func (n *node) setNeighbors(layer int, list []model.ID) {
	n.layers[layer].Store(&list)
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	entry atomic.Pointer[entryPoint]
	nodes atomic.Pointer[[]*node]

	vectors      index.Vectors
	distanceFunc distance.Func
	rng          *rand.Rand
	rngMu        sync.Mutex

	maxConnectionsPerLayer int
	maxConnectionsLayer0   int
	layerMultiplier        float64
	opts                   Options

	// mu serializes Insert. PlanInsert and Apply rely on the caller instead.
	mu sync.Mutex

	minQueuePool *sync.Pool
	maxQueuePool *sync.Pool
	visitedPool  *sync.Pool
}

// New creates a new HNSW graph over the given vector source.
func New(vectors index.Vectors, optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if vectors == nil {
		return nil, errors.New("hnsw: vector source is required")
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}
	if opts.MaxLevel <= 0 {
		opts.MaxLevel = DefaultMaxLevel
	}

	distFn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ef := opts.EFConstruction
	h := &HNSW{
		vectors:                vectors,
		distanceFunc:           distFn,
		rng:                    rng,
		maxConnectionsPerLayer: opts.M,
		maxConnectionsLayer0:   mmax0Multiplier * opts.M,
		layerMultiplier:        1 / math.Log(float64(opts.M)),
		opts:                   opts,
		minQueuePool: &sync.Pool{
			New: func() any { return queue.NewMin(ef) },
		},
		maxQueuePool: &sync.Pool{
			New: func() any { return queue.NewMax(ef) },
		},
		visitedPool: &sync.Pool{
			New: func() any { return visited.New(1024) },
		},
	}

	empty := make([]*node, 0)
	h.nodes.Store(&empty)

	return h, nil
}

// Options returns the effective options.
func (h *HNSW) Options() Options { return h.opts }

// Len returns the number of nodes in the graph.
func (h *HNSW) Len() int { return len(*h.nodes.Load()) }

// EntryPoint returns the current entry point and its level.
func (h *HNSW) EntryPoint() (model.ID, int, bool) {
	ep := h.entry.Load()
	if ep == nil {
		return 0, -1, false
	}
	return ep.id, ep.level, true
}

// Level returns the top layer of a node, or -1 if the node does not exist.
func (h *HNSW) Level(id model.ID) int {
	n := h.node(id)
	if n == nil {
		return -1
	}
	return n.level
}

// Neighbors returns the published neighbor list of id on layer.
// The slice is immutable and must not be modified.
func (h *HNSW) Neighbors(id model.ID, layer int) []model.ID {
	n := h.node(id)
	if n == nil {
		return nil
	}
	return n.neighbors(layer)
}

// MaxConnections returns the neighbor-list bound of a layer.
func (h *HNSW) MaxConnections(layer int) int {
	if layer == 0 {
		return h.maxConnectionsLayer0
	}
	return h.maxConnectionsPerLayer
}

func (h *HNSW) node(id model.ID) *node {
	nodes := *h.nodes.Load()
	if int(id) >= len(nodes) {
		return nil
	}
	return nodes[id]
}

// appendNode publishes n under the next ID. Callers hold the writer role.
func (h *HNSW) appendNode(n *node) {
	cur := *h.nodes.Load()
	next := cur
	if len(cur) == cap(cur) {
		newCap := 2 * cap(cur)
		if newCap < 1024 {
			newCap = 1024
		}
		next = make([]*node, len(cur), newCap)
		copy(next, cur)
	}
	next = append(next, n)
	h.nodes.Store(&next)
}

func (h *HNSW) randomLevel() int {
	h.rngMu.Lock()
	r := h.rng.Float64()
	h.rngMu.Unlock()

	// Float64 may return 0, whose log is -Inf.
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	level := int(math.Floor(-math.Log(r) * h.layerMultiplier))
	if level > h.opts.MaxLevel {
		level = h.opts.MaxLevel
	}
	return level
}

// dist computes distance between vector and node ID.
func (h *HNSW) dist(v []float32, id model.ID) float32 {
	vec, ok := h.vectors.Vector(id)
	if !ok {
		return math.MaxFloat32
	}
	return h.distanceFunc(v, vec)
}
