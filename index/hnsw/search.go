package hnsw

import (
	"context"

	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/index/flat"
	"github.com/hupe1980/hnswfield/internal/queue"
	"github.com/hupe1980/hnswfield/internal/visited"
)

// ctxCheckInterval is how many frontier pops happen between context checks.
const ctxCheckInterval = 256

// KNNSearch performs an approximate K-nearest neighbor search.
// Results are sorted by ascending distance. An empty graph yields no results.
func (h *HNSW) KNNSearch(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, index.SearchStats, error) {
	var stats index.SearchStats
	if k <= 0 {
		return nil, stats, index.ErrInvalidK
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	ep := h.entry.Load()
	if ep == nil {
		return nil, stats, nil
	}
	if epVec, ok := h.vectors.Vector(ep.id); ok && len(epVec) != len(q) {
		return nil, stats, &index.ErrDimensionMismatch{Expected: len(epVec), Actual: len(q)}
	}

	ef := h.opts.EFSearch
	if ef <= 0 {
		ef = h.opts.EFConstruction
	}
	var filter index.FilterFunc
	if opts != nil {
		if opts.EFSearch > 0 {
			ef = opts.EFSearch
		}
		filter = opts.Filter
	}
	ef = max(ef, k)
	stats.EF = ef

	total := h.Len()
	curr := h.greedyDescent(q, queue.Item{Node: ep.id, Distance: h.dist(q, ep.id)}, ep.level, 0)

	results, visitedCount, err := h.searchLayer(ctx, q, curr, 0, ef, filter)
	if err != nil {
		return nil, stats, err
	}
	defer h.putMaxQueue(results)

	stats.Visited = visitedCount
	stats.Exhaustive = visitedCount >= total

	for results.Len() > k {
		_, _ = results.Pop()
	}

	out := make([]index.SearchResult, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item, _ := results.Pop()
		out[i] = index.SearchResult{ID: item.Node, Distance: item.Distance}
	}

	return out, stats, nil
}

// BruteSearch performs an exact search over every vector known to the graph's vector source.
func (h *HNSW) BruteSearch(ctx context.Context, q []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error) {
	return flat.Search(ctx, h.vectors, h.distanceFunc, q, k, filter)
}

// greedyDescent walks from layer `from` down to layer `to`+1, moving to any
// strictly closer neighbor until none exists on the current layer.
func (h *HNSW) greedyDescent(q []float32, curr queue.Item, from, to int) queue.Item {
	for level := from; level > to; level-- {
		changed := true
		for changed {
			changed = false
			for _, nextID := range h.Neighbors(curr.Node, level) {
				nextDist := h.dist(q, nextID)
				if nextDist < curr.Distance {
					curr = queue.Item{Node: nextID, Distance: nextDist}
					changed = true
				}
			}
		}
	}
	return curr
}

// searchLayer runs a beam search of width ef on one layer starting at ep.
// filter, if not nil, restricts which nodes are admitted to the result set;
// rejected nodes are still expanded. The returned max-queue belongs to the
// caller, who must release it with putMaxQueue.
func (h *HNSW) searchLayer(ctx context.Context, q []float32, ep queue.Item, layer, ef int, filter index.FilterFunc) (*queue.PriorityQueue, int, error) {
	seen := h.visitedPool.Get().(*visited.VisitedSet)
	seen.Reset()
	defer h.visitedPool.Put(seen)

	candidates := h.minQueuePool.Get().(*queue.PriorityQueue)
	candidates.Reset()
	defer func() {
		candidates.Reset()
		h.minQueuePool.Put(candidates)
	}()

	results := h.maxQueuePool.Get().(*queue.PriorityQueue)
	results.Reset()

	seen.Visit(ep.Node)
	candidates.Push(ep)
	if filter == nil || filter(ep.Node) {
		results.Push(ep)
	}

	for pops := 1; candidates.Len() > 0; pops++ {
		if pops%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				h.putMaxQueue(results)
				return nil, 0, err
			}
		}

		curr, _ := candidates.Pop()

		if results.Len() >= ef {
			worst, _ := results.Top()
			if queue.Before(worst, curr) {
				break
			}
		}

		for _, nextID := range h.Neighbors(curr.Node, layer) {
			if !seen.Visit(nextID) {
				continue
			}

			next := queue.Item{Node: nextID, Distance: h.dist(q, nextID)}

			// Without a filter a node that cannot enter the full result set
			// cannot lead anywhere useful either.
			if filter == nil && results.Len() >= ef {
				worst, _ := results.Top()
				if !queue.Before(next, worst) {
					continue
				}
			}

			candidates.Push(next)

			if filter == nil || filter(nextID) {
				results.Push(next)
				if results.Len() > ef {
					_, _ = results.Pop()
				}
			}
		}
	}

	return results, seen.Count(), nil
}

func (h *HNSW) putMaxQueue(pq *queue.PriorityQueue) {
	pq.Reset()
	h.maxQueuePool.Put(pq)
}
