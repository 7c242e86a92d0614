// Package merge implements the k-way heap merge the store's offset
// index and member index use to combine sorted runs.
package merge

import "container/heap"

type mergeHeap[T any] struct {
	items []heapItem[T]
	less  func(a, b T) bool
}

type heapItem[T any] struct {
	value  T
	source int
	pos    int
}

func (h *mergeHeap[T]) Len() int { return len(h.items) }
func (h *mergeHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if h.less(a.value, b.value) {
		return true
	}
	if h.less(b.value, a.value) {
		return false
	}
	// equal keys drain in run order so later runs stay later
	return a.source < b.source
}
func (h *mergeHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap[T]) Push(x any)    { h.items = append(h.items, x.(heapItem[T])) }
func (h *mergeHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// K merges k individually-sorted runs into one sorted slice. O(N log k).
// Ties between runs resolve in run order, so later runs win when the
// caller dedups keeping the last occurrence.
func K[T any](less func(a, b T) bool, runs ...[]T) []T {
	total := 0
	for _, r := range runs {
		total += len(r)
	}
	out := make([]T, 0, total)

	h := &mergeHeap[T]{less: less}
	for i, r := range runs {
		if len(r) > 0 {
			h.items = append(h.items, heapItem[T]{value: r[0], source: i, pos: 0})
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem[T])
		out = append(out, top.value)
		run := runs[top.source]
		if next := top.pos + 1; next < len(run) {
			heap.Push(h, heapItem[T]{value: run[next], source: top.source, pos: next})
		}
	}
	return out
}
