package hnsw

import (
	"fmt"

	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/model"
)

// GraphState is a detached copy of the graph topology.
type GraphState struct {
	// Levels holds the top layer of every node, indexed by ID.
	Levels []int
	// Links holds the neighbor lists, indexed by ID then layer.
	Links [][][]model.ID
	// EntryPoint is the entry node. It is ignored when Levels is empty.
	EntryPoint model.ID
}

// Export copies the published topology.
// Export must not run concurrently with a writer.
func (h *HNSW) Export() *GraphState {
	nodes := *h.nodes.Load()
	st := &GraphState{
		Levels: make([]int, len(nodes)),
		Links:  make([][][]model.ID, len(nodes)),
	}
	for i, n := range nodes {
		st.Levels[i] = n.level
		st.Links[i] = make([][]model.ID, n.level+1)
		for layer := 0; layer <= n.level; layer++ {
			src := n.neighbors(layer)
			dst := make([]model.ID, len(src))
			copy(dst, src)
			st.Links[i][layer] = dst
		}
	}
	if ep := h.entry.Load(); ep != nil {
		st.EntryPoint = ep.id
	}
	return st
}

// Restore rebuilds a graph from an exported state and validates it.
// The vector source must hold a vector for every node.
func Restore(vectors index.Vectors, st *GraphState, optFns ...func(o *Options)) (*HNSW, error) {
	h, err := New(vectors, optFns...)
	if err != nil {
		return nil, err
	}
	if st == nil || len(st.Levels) == 0 {
		return h, nil
	}
	if len(st.Links) != len(st.Levels) {
		return nil, fmt.Errorf("%w: %d levels but %d link sets", ErrInvalidGraph, len(st.Levels), len(st.Links))
	}
	if vectors.Count() < len(st.Levels) {
		return nil, fmt.Errorf("%w: %d nodes but %d vectors", ErrInvalidGraph, len(st.Levels), vectors.Count())
	}
	if int(st.EntryPoint) >= len(st.Levels) {
		return nil, fmt.Errorf("%w: entry point %d out of range", ErrInvalidGraph, uint32(st.EntryPoint))
	}

	for i, level := range st.Levels {
		if level < 0 || level > h.opts.MaxLevel {
			return nil, fmt.Errorf("%w: node %d has level %d", ErrInvalidGraph, i, level)
		}
		if len(st.Links[i]) != level+1 {
			return nil, fmt.Errorf("%w: node %d has %d layers, expected %d", ErrInvalidGraph, i, len(st.Links[i]), level+1)
		}
		n := newNode(level)
		for layer := 0; layer <= level; layer++ {
			list := make([]model.ID, len(st.Links[i][layer]))
			copy(list, st.Links[i][layer])
			n.setNeighbors(layer, list)
		}
		h.appendNode(n)
	}

	h.entry.Store(&entryPoint{id: st.EntryPoint, level: st.Levels[st.EntryPoint]})

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}
