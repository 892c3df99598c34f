package journal

import "sync"

// Queue is a bounded FIFO ring that starts small and doubles its backing
// array once it is 70% full, never past its limit. Push never blocks; a full
// queue rejects the item.
type Queue[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int
	count int
	limit int

	ready chan struct{}

	pushed  int64
	dropped int64
	resizes int
}

// QueueStats contains queue counters.
type QueueStats struct {
	Len      int
	Capacity int
	Limit    int
	Pushed   int64
	Dropped  int64
	Resizes  int
}

const initialQueueCapacity = 64

// NewQueue creates a queue holding at most limit items.
func NewQueue[T any](limit int) *Queue[T] {
	if limit < 1 {
		limit = 1
	}
	capacity := initialQueueCapacity
	if capacity > limit {
		capacity = limit
	}
	return &Queue[T]{
		buf:   make([]T, capacity),
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends item. Returns false if the queue is at its limit.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.count >= q.limit {
		q.dropped++
		q.mu.Unlock()
		return false
	}
	if (q.count+1)*10 >= len(q.buf)*7 && len(q.buf) < q.limit {
		q.resize()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
	q.pushed++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after a Push. Several pushes may share one signal.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes up to max items in FIFO order. max <= 0 drains everything.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	var zero T
	for i := range out {
		out[i] = q.buf[q.head]
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
	}
	q.count -= n
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:      q.count,
		Capacity: len(q.buf),
		Limit:    q.limit,
		Pushed:   q.pushed,
		Dropped:  q.dropped,
		Resizes:  q.resizes,
	}
}

// resize doubles the backing array up to limit. Caller holds mu.
func (q *Queue[T]) resize() {
	next := len(q.buf) * 2
	if next > q.limit {
		next = q.limit
	}
	buf := make([]T, next)
	for i := 0; i < q.count; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
	q.resizes++
}
