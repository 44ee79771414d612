// Package queue provides a bounded top-K selector for similarity results.
package queue

// Item is a scored candidate. Index is the row start slot.
type Item struct {
	Index int
	Score float64
}

// better reports whether a ranks ahead of b: higher score first,
// ties broken by ascending index.
func better(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// TopK keeps the K best items seen so far.
// The root of the heap is the worst retained item, so a candidate only
// needs one comparison to be rejected.
type TopK struct {
	k     int
	items []Item
}

// NewTopK returns a selector for the k best items. k must be positive.
func NewTopK(k int) *TopK {
	return &TopK{k: k, items: make([]Item, 0, min(k, 1024))}
}

// Len returns the number of retained items.
func (q *TopK) Len() int { return len(q.items) }

// Push offers a candidate.
func (q *TopK) Push(it Item) {
	if len(q.items) < q.k {
		q.items = append(q.items, it)
		q.siftUp(len(q.items) - 1)
		return
	}
	if !better(it, q.items[0]) {
		return
	}
	q.items[0] = it
	q.siftDown(0)
}

// Sorted drains the selector and returns the items best first.
func (q *TopK) Sorted() []Item {
	out := make([]Item, len(q.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = q.pop()
	}
	return out
}

func (q *TopK) pop() Item {
	n := len(q.items)
	root := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]
	if len(q.items) > 0 {
		q.siftDown(0)
	}
	return root
}

// less orders the heap worst-first.
func (q *TopK) less(i, j int) bool {
	return better(q.items[j], q.items[i])
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.less(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		if r := l + 1; r < n && q.less(r, l) {
			worst = r
		}
		if !q.less(worst, i) {
			return
		}
		q.items[i], q.items[worst] = q.items[worst], q.items[i]
		i = worst
	}
}
