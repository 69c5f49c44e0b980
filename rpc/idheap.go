package rpc

import "container/heap"

// idHeap is a plain min-priority queue over free ids (spec §9: "the
// 'reverse u32' comparator in the source is simply a min-priority
// queue over ids").  container/heap already orders by the natural
// uint32 ordering, so no reversal wrapper is needed in Go.
type idHeap []uint32

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(uint32)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

func (h *idHeap) push(id uint32) { heap.Push(h, id) }

// popMin returns the smallest free id, or ok=false if the heap is empty.
func (h *idHeap) popMin() (id uint32, ok bool) {
	if h.Len() == 0 {
		return 0, false
	}
	return heap.Pop(h).(uint32), true
}

func newIDHeap() *idHeap {
	h := &idHeap{}
	heap.Init(h)
	return h
}
