package job

import "sync"

// RetryQueue holds failed jobs. The most recently failed job is served
// first, ahead of older retries and of any fresh job.
type RetryQueue struct {
	mu    sync.Mutex
	stack []Job
}

func NewRetryQueue() *RetryQueue { return &RetryQueue{} }

func (r *RetryQueue) PushFront(j Job) {
	r.mu.Lock()
	r.stack = append(r.stack, j)
	r.mu.Unlock()
}

// PopFront checks and removes under one lock so two callers never see the
// same job.
func (r *RetryQueue) PopFront() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.stack)
	if n == 0 {
		return Job{}, false
	}
	j := r.stack[n-1]
	r.stack[n-1] = Job{}
	r.stack = r.stack[:n-1]
	return j, true
}

func (r *RetryQueue) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

// Keys lists queued keys front to back.
func (r *RetryQueue) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.stack))
	for i := len(r.stack) - 1; i >= 0; i-- {
		out = append(out, r.stack[i].Key)
	}
	return out
}
