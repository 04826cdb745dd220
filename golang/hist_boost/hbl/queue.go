package hbl

import (
	"container/heap"
)

//queueItem is a node waiting to be split. It owns its histogram until it is popped.
type queueItem struct {
	gain        float64
	bestSplit   *BestSplit
	parentIndex int // -1 for the root
	direction   SplitDirection
	depth       int
	examples    ExampleRange
	binStats    *BinStats
	totals      NodeTotals
	sequence    int
}

//splitQueue is a max-heap on gain. Equal gains pop in push order.
type splitQueue struct {
	items        []*queueItem
	nextSequence int
}

func (q *splitQueue) Len() int { return len(q.items) }

func (q *splitQueue) Less(i, j int) bool {
	if q.items[i].gain != q.items[j].gain {
		return q.items[i].gain > q.items[j].gain
	}
	return q.items[i].sequence < q.items[j].sequence
}

func (q *splitQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *splitQueue) Push(x any) { q.items = append(q.items, x.(*queueItem)) }

func (q *splitQueue) Pop() any {
	n := len(q.items) - 1
	item := q.items[n]
	q.items[n] = nil
	q.items = q.items[:n]
	return item
}

func (q *splitQueue) push(item *queueItem) {
	item.sequence = q.nextSequence
	q.nextSequence++
	heap.Push(q, item)
}

func (q *splitQueue) pop() *queueItem {
	return heap.Pop(q).(*queueItem)
}
