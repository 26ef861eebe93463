// Package flat implements exact nearest neighbor search by linear scan.
package flat

import (
	"context"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index"
	"github.com/hupe1980/hnswfield/internal/queue"
	"github.com/hupe1980/hnswfield/model"
)

const ctxCheckInterval = 1024

// Flat scores every stored vector against the query.
type Flat struct {
	vectors      index.Vectors
	distanceFunc distance.Func
	metric       distance.Metric
}

// New creates an exact index over vectors.
func New(vectors index.Vectors, metric distance.Metric) (*Flat, error) {
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	return &Flat{vectors: vectors, distanceFunc: fn, metric: metric}, nil
}

// Metric returns the distance metric of the index.
func (f *Flat) Metric() distance.Metric { return f.metric }

// KNNSearch returns the k exact nearest neighbors accepted by filter.
func (f *Flat) KNNSearch(ctx context.Context, q []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error) {
	return Search(ctx, f.vectors, f.distanceFunc, q, k, filter)
}

// Search scans all IDs in [0, vectors.Count()) and returns the k smallest
// distances in ascending order. Equal distances are ordered by ID.
func Search(ctx context.Context, vectors index.Vectors, dist distance.Func, q []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	n := vectors.Count()
	if n > 0 {
		if v, ok := vectors.Vector(0); ok && len(v) != len(q) {
			return nil, &index.ErrDimensionMismatch{Expected: len(v), Actual: len(q)}
		}
	}

	pq := queue.NewMax(min(k, n) + 1)
	for i := 0; i < n; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		id := model.ID(i)
		if filter != nil && !filter(id) {
			continue
		}
		v, ok := vectors.Vector(id)
		if !ok {
			continue
		}

		item := queue.Item{Node: id, Distance: dist(q, v)}
		if pq.Len() < k {
			pq.Push(item)
			continue
		}
		if worst, _ := pq.Top(); queue.Before(item, worst) {
			_, _ = pq.Pop()
			pq.Push(item)
		}
	}

	out := make([]index.SearchResult, pq.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item, _ := pq.Pop()
		out[i] = index.SearchResult{ID: item.Node, Distance: item.Distance}
	}
	return out, nil
}
