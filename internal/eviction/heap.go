package eviction

import (
	"container/heap"

	"cachedb/internal/index"
)

// candidate is one entry held in the bounded "oldest" collection built
// by sizePrune.
type candidate struct {
	key     index.Key
	useTime uint64
	size    int64
}

// candidateHeap is a max-heap on useTime: the largest useTime (the
// newest-among-the-oldest) sits at the head, so it's the cheapest item
// to discard once the collection holds enough bytes.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[i].useTime > h[j].useTime }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// oldestSet is a bounded running collection: it holds candidates whose
// summed size is at least target bytes, approximately the oldest
// entries seen so far, shedding its newest member whenever doing so
// would not drop the total below target.
type oldestSet struct {
	h      candidateHeap
	target int64
	total  int64
}

func newOldestSet(target int64) *oldestSet {
	s := &oldestSet{target: target}
	heap.Init(&s.h)
	return s
}

// add considers one candidate entry for inclusion: if the collection
// holds less than target bytes, add unconditionally; otherwise add
// only if c is older than the current head (the newest-among-the-
// oldest), then shed the head while doing so keeps total at or above
// target.
func (s *oldestSet) add(c candidate) {
	if s.total < s.target {
		heap.Push(&s.h, c)
		s.total += c.size
		s.shrink()
		return
	}
	if len(s.h) == 0 || c.useTime >= s.h[0].useTime {
		return
	}
	heap.Push(&s.h, c)
	s.total += c.size
	s.shrink()
}

func (s *oldestSet) shrink() {
	for len(s.h) > 0 && s.total-s.h[0].size >= s.target {
		top := heap.Pop(&s.h).(candidate)
		s.total -= top.size
	}
}

// keys returns the keys of every candidate retained in the set.
func (s *oldestSet) keys() []index.Key {
	out := make([]index.Key, len(s.h))
	for i, c := range s.h {
		out[i] = c.key
	}
	return out
}
