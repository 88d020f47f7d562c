package engine

// candidate pairs a slot with its distance to the current query.
type candidate struct {
	slot uint32
	dist float32
}

// candidateHeap is a value-based binary heap over candidates. It does
// not implement container/heap; the traversal loops are hot and the
// interface indirection costs more than these few methods save.
type candidateHeap struct {
	max   bool // true orders worst-first, false best-first
	items []candidate
}

func newCandidateHeap(max bool) *candidateHeap {
	return &candidateHeap{max: max, items: make([]candidate, 0, 16)}
}

func (h *candidateHeap) reset()   { h.items = h.items[:0] }
func (h *candidateHeap) len() int { return len(h.items) }

func (h *candidateHeap) top() (candidate, bool) {
	if len(h.items) == 0 {
		return candidate{}, false
	}
	return h.items[0], true
}

func (h *candidateHeap) push(c candidate) {
	h.items = append(h.items, c)
	h.siftUp(len(h.items) - 1)
}

// pushBounded inserts into a heap capped at capacity, replacing the top
// when the new candidate beats it.
func (h *candidateHeap) pushBounded(c candidate, capacity int) {
	if len(h.items) < capacity {
		h.push(c)
		return
	}
	top := h.items[0]
	if h.max {
		if c.dist < top.dist {
			h.items[0] = c
			h.siftDown(0)
		}
		return
	}
	if c.dist > top.dist {
		h.items[0] = c
		h.siftDown(0)
	}
}

func (h *candidateHeap) pop() (candidate, bool) {
	n := len(h.items)
	if n == 0 {
		return candidate{}, false
	}
	c := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return c, true
}

// drainAscending empties a worst-first heap into a best-first slice.
func (h *candidateHeap) drainAscending() []candidate {
	out := make([]candidate, len(h.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i], _ = h.pop()
	}
	return out
}

func (h *candidateHeap) less(i, j int) bool {
	if h.max {
		return h.items[i].dist > h.items[j].dist
	}
	return h.items[i].dist < h.items[j].dist
}

func (h *candidateHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *candidateHeap) siftDown(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && h.less(right, left) {
			child = right
		}
		if !h.less(child, i) {
			break
		}
		h.items[i], h.items[child] = h.items[child], h.items[i]
		i = child
	}
}
