package framepool

// queue is a fixed-capacity FIFO of frame handles. It never allocates after
// construction, so pushes and pops under the pool lock stay O(1).
type queue struct {
	items []int
	head  int
	n     int
}

func newQueue(capacity int) queue {
	return queue{items: make([]int, capacity)}
}

func (q *queue) len() int { return q.n }

func (q *queue) clear() {
	q.head = 0
	q.n = 0
}

// push appends h at the tail. It reports false when the queue is full, which
// only happens if a handle is pushed twice.
func (q *queue) push(h int) bool {
	if q.n == len(q.items) {
		return false
	}
	q.items[(q.head+q.n)%len(q.items)] = h
	q.n++
	return true
}

func (q *queue) pop() (int, bool) {
	if q.n == 0 {
		return 0, false
	}
	h := q.items[q.head]
	q.head = (q.head + 1) % len(q.items)
	q.n--
	return h, true
}

// snapshot copies the handles from head to tail.
func (q *queue) snapshot() []int {
	out := make([]int, q.n)
	for i := range out {
		out[i] = q.items[(q.head+i)%len(q.items)]
	}
	return out
}
