package hnsw

import (
	"slices"

	"github.com/hupe1980/hnswfield/internal/queue"
	"github.com/hupe1980/hnswfield/model"
)

type vectorLookup func(id model.ID) ([]float32, bool)

// sortCandidates orders candidates nearest first, ties by ID.
func sortCandidates(cands []queue.Item) {
	slices.SortFunc(cands, func(a, b queue.Item) int {
		switch {
		case queue.Before(a, b):
			return -1
		case queue.Before(b, a):
			return 1
		default:
			return 0
		}
	})
}

// selectNeighbors picks at most m neighbors from cands, which must be sorted nearest first.
func (h *HNSW) selectNeighbors(cands []queue.Item, m int, lookup vectorLookup) []model.ID {
	if h.opts.Heuristic {
		return h.selectNeighborsHeuristic(cands, m, lookup)
	}
	return selectNeighborsSimple(cands, m)
}

func selectNeighborsSimple(cands []queue.Item, m int) []model.ID {
	n := min(m, len(cands))
	res := make([]model.ID, n)
	for i := 0; i < n; i++ {
		res[i] = cands[i].Node
	}
	return res
}

// selectNeighborsHeuristic admits a candidate only if it is at least as close to
// the base as to every neighbor admitted before it. Slots left open are then
// backfilled with the nearest rejected candidates.
func (h *HNSW) selectNeighborsHeuristic(cands []queue.Item, m int, lookup vectorLookup) []model.ID {
	if len(cands) <= m {
		return selectNeighborsSimple(cands, m)
	}

	result := make([]model.ID, 0, m)
	resultVecs := make([][]float32, 0, m)
	rejected := make([]model.ID, 0, len(cands))

	for _, cand := range cands {
		if len(result) >= m {
			break
		}

		candVec, ok := lookup(cand.Node)
		if !ok {
			continue
		}

		good := true
		for _, resVec := range resultVecs {
			if h.distanceFunc(candVec, resVec) < cand.Distance {
				good = false
				break
			}
		}

		if good {
			result = append(result, cand.Node)
			resultVecs = append(resultVecs, candVec)
		} else {
			rejected = append(rejected, cand.Node)
		}
	}

	for _, id := range rejected {
		if len(result) >= m {
			break
		}
		result = append(result, id)
	}

	return result
}
