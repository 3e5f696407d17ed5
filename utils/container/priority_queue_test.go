package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/container"
)

func TestPriorityQueueOrder(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	q.Push("c", 3)
	q.Push("a", 1)
	q.Push("b", 2)
	q.Heapify()
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, "a", q.First())

	v, p := q.HeapPop()
	assert.Equal(t, "a", v)
	assert.Equal(t, 1., p)

	q.HeapPush("z", 0)
	v, _ = q.HeapPop()
	assert.Equal(t, "z", v)
	v, _ = q.HeapPop()
	assert.Equal(t, "b", v)
	v, _ = q.HeapPop()
	assert.Equal(t, "c", v)
	assert.Equal(t, 0, q.Len())
}

func TestPriorityQueueTieKeepsInsertionOrder(t *testing.T) {
	q := container.NewPriorityQueue[int]()
	for i := 0; i < 8; i++ {
		q.Push(i, -1)
	}
	q.Push(100, -2)
	q.Heapify()

	v, _ := q.HeapPop()
	assert.Equal(t, 100, v)
	for i := 0; i < 8; i++ {
		v, _ = q.HeapPop()
		assert.Equal(t, i, v)
	}
}
