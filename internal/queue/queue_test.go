package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/hnswfield/model"
)

func TestMinQueue(t *testing.T) {
	pq := NewMin(4)
	for i, d := range []float32{5, 1, 3, 2, 4} {
		pq.Push(Item{Node: model.ID(i), Distance: d})
	}

	top, ok := pq.Top()
	assert.True(t, ok)
	assert.Equal(t, float32(1), top.Distance)

	var got []float32
	for pq.Len() > 0 {
		item, _ := pq.Pop()
		got = append(got, item.Distance)
	}
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, got)

	_, ok = pq.Pop()
	assert.False(t, ok)
}

func TestMaxQueue(t *testing.T) {
	pq := NewMax(4)
	for i, d := range []float32{5, 1, 3, 2, 4} {
		pq.Push(Item{Node: model.ID(i), Distance: d})
	}

	var got []float32
	for pq.Len() > 0 {
		item, _ := pq.Pop()
		got = append(got, item.Distance)
	}
	assert.Equal(t, []float32{5, 4, 3, 2, 1}, got)
}

func TestTieBreakByID(t *testing.T) {
	minQ := NewMin(3)
	maxQ := NewMax(3)
	for _, id := range []model.ID{7, 3, 5} {
		minQ.Push(Item{Node: id, Distance: 1})
		maxQ.Push(Item{Node: id, Distance: 1})
	}

	first, _ := minQ.Pop()
	assert.Equal(t, model.ID(3), first.Node)

	worst, _ := maxQ.Pop()
	assert.Equal(t, model.ID(7), worst.Node)
}

func TestReset(t *testing.T) {
	pq := NewMin(2)
	pq.Push(Item{Node: 1, Distance: 1})
	pq.Reset()
	assert.Equal(t, 0, pq.Len())
	_, ok := pq.Top()
	assert.False(t, ok)
}
