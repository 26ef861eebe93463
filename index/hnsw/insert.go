package hnsw

import (
	"context"
	"fmt"

	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/internal/queue"
	"github.com/hupe1980/hnswfield/model"
)

type linkUpdate struct {
	node  model.ID
	layer int
	list  []model.ID
}

// InsertPlan is the complete linkage of one pending node.
//
// A plan is computed from published state only and touches nothing until
// Apply. It stays valid as long as no other node is added in between.
type InsertPlan struct {
	id      model.ID
	level   int
	base    int
	own     [][]model.ID
	updates []linkUpdate
	promote bool
}

// ID returns the ID the planned node will be published under.
func (p *InsertPlan) ID() model.ID { return p.id }

// Level returns the top layer drawn for the planned node.
func (p *InsertPlan) Level() int { return p.level }

// Insert links the vector stored under id into the graph.
// id must be the next dense ID (Len()) and already resolvable through the
// graph's vector source.
func (h *HNSW) Insert(ctx context.Context, id model.ID, vec []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	plan, err := h.PlanInsert(ctx, id, vec)
	if err != nil {
		return err
	}
	return h.Apply(plan)
}

// PlanInsert computes where a new node with the given vector would be linked.
//
// Nothing is published, so a cancelled or failed plan leaves the graph as it
// was. The vector need not be stored yet. Callers must serialize PlanInsert and
// Apply with all other writers of the graph.
func (h *HNSW) PlanInsert(ctx context.Context, id model.ID, vec []float32) (*InsertPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := h.Len()
	if int(id) != base {
		if int(id) < base {
			return nil, fmt.Errorf("%w: %d", index.ErrNodeExists, uint32(id))
		}
		return nil, fmt.Errorf("hnsw: non-dense id %d, expected %d", uint32(id), base)
	}

	level := h.randomLevel()
	plan := &InsertPlan{
		id:    id,
		level: level,
		base:  base,
		own:   make([][]model.ID, level+1),
	}

	ep := h.entry.Load()
	if ep == nil {
		plan.promote = true
		return plan, nil
	}

	if epVec, ok := h.vectors.Vector(ep.id); ok && len(epVec) != len(vec) {
		return nil, &index.ErrDimensionMismatch{Expected: len(epVec), Actual: len(vec)}
	}

	lookup := func(n model.ID) ([]float32, bool) {
		if n == id {
			return vec, true
		}
		return h.vectors.Vector(n)
	}

	// 1. Greedy search from the top layer down to level+1.
	curr := h.greedyDescent(vec, queue.Item{Node: ep.id, Distance: h.dist(vec, ep.id)}, ep.level, level)

	// 2. Beam search and link from min(level, top) down to 0.
	for layer := min(level, ep.level); layer >= 0; layer-- {
		results, _, err := h.searchLayer(ctx, vec, curr, layer, h.opts.EFConstruction, nil)
		if err != nil {
			return nil, err
		}

		cands := make([]queue.Item, results.Len())
		copy(cands, results.Items())
		h.putMaxQueue(results)
		sortCandidates(cands)

		if len(cands) > 0 {
			curr = cands[0]
		}

		neighbors := h.selectNeighbors(cands, h.maxConnectionsPerLayer, lookup)
		plan.own[layer] = neighbors

		for _, n := range neighbors {
			list, err := h.planBacklink(n, layer, id, lookup)
			if err != nil {
				return nil, err
			}
			plan.updates = append(plan.updates, linkUpdate{node: n, layer: layer, list: list})
		}
	}

	plan.promote = level > ep.level

	return plan, nil
}

// planBacklink returns the replacement neighbor list of n on layer after adding
// target, pruned back to the layer bound with the selection heuristic.
func (h *HNSW) planBacklink(n model.ID, layer int, target model.ID, lookup vectorLookup) ([]model.ID, error) {
	current := h.Neighbors(n, layer)
	bound := h.MaxConnections(layer)

	if len(current) < bound {
		list := make([]model.ID, len(current), len(current)+1)
		copy(list, current)
		return append(list, target), nil
	}

	nVec, ok := h.vectors.Vector(n)
	if !ok {
		return nil, &index.ErrNodeNotFound{ID: n}
	}

	cands := make([]queue.Item, 0, len(current)+1)
	for _, c := range current {
		cVec, ok := lookup(c)
		if !ok {
			continue
		}
		cands = append(cands, queue.Item{Node: c, Distance: h.distanceFunc(nVec, cVec)})
	}
	tVec, _ := lookup(target)
	cands = append(cands, queue.Item{Node: target, Distance: h.distanceFunc(nVec, tVec)})
	sortCandidates(cands)

	return h.selectNeighbors(cands, bound, lookup), nil
}

// Apply publishes a plan: the node with its own lists first, then the
// replacement lists of its neighbors, and finally the entry point.
func (h *HNSW) Apply(plan *InsertPlan) error {
	if plan == nil {
		return fmt.Errorf("hnsw: nil plan")
	}
	if h.Len() != plan.base {
		return ErrStalePlan
	}

	n := newNode(plan.level)
	for layer := 0; layer <= plan.level; layer++ {
		list := plan.own[layer]
		if list == nil {
			list = []model.ID{}
		}
		n.setNeighbors(layer, list)
	}
	h.appendNode(n)

	for _, u := range plan.updates {
		if target := h.node(u.node); target != nil {
			target.setNeighbors(u.layer, u.list)
		}
	}

	if plan.promote {
		h.entry.Store(&entryPoint{id: plan.id, level: plan.level})
	}

	return nil
}
