package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/container"
)

func TestPriorityQueueOrder(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	assert.True(t, q.Empty())

	q.HeapPush("c", 3)
	q.HeapPush("a", 1)
	q.HeapPush("b", 2)
	assert.Equal(t, 3, q.Len())

	v, p := q.First()
	assert.Equal(t, "a", v)
	assert.Equal(t, 1., p)

	got := make([]string, 0)
	for !q.Empty() {
		v, _ := q.HeapPop()
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestPriorityQueueTieBreak(t *testing.T) {
	q := container.NewPriorityQueue[int]()
	for i := range 5 {
		q.HeapPush(i, 1)
	}
	q.HeapPush(-1, 0.5)
	got := make([]int, 0)
	for !q.Empty() {
		v, _ := q.HeapPop()
		got = append(got, v)
	}
	assert.Equal(t, []int{-1, 0, 1, 2, 3, 4}, got)
}
