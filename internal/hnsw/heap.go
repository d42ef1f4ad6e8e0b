package hnsw

import (
	"container/heap"

	"github.com/veclite-io/veclite/internal/vector"
)

// candidate pairs a node id with its distance to the active query, used by
// both the insertion beam search and the query-time beam search.
type candidate struct {
	id       vector.ID
	distance float32
}

// candidateHeap is a max-heap (worst distance at the top) so the worst
// candidate in a bounded beam can be evicted in O(log n) as better ones
// arrive.
type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func newCandidateHeap(capHint int) *candidateHeap {
	h := make(candidateHeap, 0, capHint)
	heap.Init(&h)
	return &h
}

func (h *candidateHeap) Peek() candidate {
	return (*h)[0]
}

func (h *candidateHeap) pushCandidate(c candidate) { heap.Push(h, c) }
func (h *candidateHeap) popCandidate() candidate   { return heap.Pop(h).(candidate) }

// AddCandidate keeps the heap bounded to maxSize, always holding the
// maxSize best (smallest-distance) candidates seen so far.
func (h *candidateHeap) AddCandidate(c candidate, maxSize int) {
	if h.Len() < maxSize {
		h.pushCandidate(c)
		return
	}
	if h.Len() > 0 && c.distance < h.Peek().distance {
		h.popCandidate()
		h.pushCandidate(c)
	}
}

// ExtractTop drains the heap and returns up to k candidates ordered best
// (smallest distance) first.
func (h *candidateHeap) ExtractTop(k int) []candidate {
	if k <= 0 {
		return nil
	}
	all := make([]candidate, 0, h.Len())
	for h.Len() > 0 {
		all = append(all, h.popCandidate())
	}
	if k > len(all) {
		k = len(all)
	}
	start := len(all) - k
	result := make([]candidate, k)
	copy(result, all[start:])
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}
