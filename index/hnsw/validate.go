package hnsw

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hnswfield/model"
)

// ErrInvalidGraph is wrapped by every structural violation reported by Validate.
var ErrInvalidGraph = errors.New("hnsw: invalid graph")

// Validate checks the structural invariants of the published graph:
//
//   - every list respects its layer bound and holds no self link or duplicate
//   - every neighbor exists on that layer
//   - if A lists B then B lists A, unless B's list is full and A was pruned from it
//   - the entry point sits on the top layer
//
// Validate must not run concurrently with a writer.
func (h *HNSW) Validate() error {
	nodes := *h.nodes.Load()
	ep := h.entry.Load()

	if len(nodes) == 0 {
		if ep != nil {
			return fmt.Errorf("%w: entry point set on empty graph", ErrInvalidGraph)
		}
		return nil
	}
	if ep == nil {
		return fmt.Errorf("%w: missing entry point", ErrInvalidGraph)
	}
	if int(ep.id) >= len(nodes) || nodes[ep.id].level != ep.level {
		return fmt.Errorf("%w: entry point %d does not match level %d", ErrInvalidGraph, uint32(ep.id), ep.level)
	}

	for i, n := range nodes {
		id := model.ID(i)
		if n.level > ep.level {
			return fmt.Errorf("%w: node %d level %d above entry level %d", ErrInvalidGraph, i, n.level, ep.level)
		}
		for layer := 0; layer <= n.level; layer++ {
			list := n.neighbors(layer)
			if len(list) > h.MaxConnections(layer) {
				return fmt.Errorf("%w: node %d layer %d has %d neighbors, bound %d", ErrInvalidGraph, i, layer, len(list), h.MaxConnections(layer))
			}
			seen := make(map[model.ID]struct{}, len(list))
			for _, nb := range list {
				if nb == id {
					return fmt.Errorf("%w: node %d links to itself on layer %d", ErrInvalidGraph, i, layer)
				}
				if _, dup := seen[nb]; dup {
					return fmt.Errorf("%w: node %d lists %d twice on layer %d", ErrInvalidGraph, i, uint32(nb), layer)
				}
				seen[nb] = struct{}{}

				if int(nb) >= len(nodes) || nodes[nb].level < layer {
					return fmt.Errorf("%w: node %d links to %d missing on layer %d", ErrInvalidGraph, i, uint32(nb), layer)
				}
				back := nodes[nb].neighbors(layer)
				if !contains(back, id) && len(back) < h.MaxConnections(layer) {
					return fmt.Errorf("%w: edge %d->%d on layer %d is one-way while %d has free slots", ErrInvalidGraph, i, uint32(nb), layer, uint32(nb))
				}
			}
		}
	}

	return nil
}

func contains(list []model.ID, id model.ID) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}
