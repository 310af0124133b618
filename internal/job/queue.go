package job

import "sync"

// Queue is the FIFO of jobs not yet attempted. Dequeue never blocks.
type Queue struct {
	mu    sync.Mutex
	items []Job
	head  int
}

func NewQueue(jobs ...Job) *Queue {
	q := &Queue{}
	for _, j := range jobs {
		q.Enqueue(j)
	}
	return q
}

func (q *Queue) Enqueue(j Job) {
	q.mu.Lock()
	q.items = append(q.items, j)
	q.mu.Unlock()
}

// TryDequeue hands the oldest job to exactly one caller.
func (q *Queue) TryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return Job{}, false
	}
	j := q.items[q.head]
	q.items[q.head] = Job{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return j, true
}

// IsEmpty is a snapshot; another goroutine may enqueue right after.
func (q *Queue) IsEmpty() bool { return q.Len() == 0 }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
