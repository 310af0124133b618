package pool

import (
	"sync"

	"envpool/internal/job"
)

// coordinator owns both queues and the in-flight count. Taking a job and
// settling it happen under one lock so the "nothing left" check can never
// see a job that is between a queue and a worker.
type coordinator struct {
	queue *job.Queue
	retry *job.RetryQueue

	mu       sync.Mutex
	inflight int
	wake     chan struct{}
	done     chan struct{}
	finished bool
}

func newCoordinator(jobs []job.Job) *coordinator {
	return &coordinator{
		queue: job.NewQueue(jobs...),
		retry: job.NewRetryQueue(),
		wake:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// take hands out the next job, retries first. When nothing is available it
// returns a channel closed on the next state change.
func (c *coordinator) take() (job.Job, bool, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if j, ok := c.retry.PopFront(); ok {
		c.inflight++
		j.Origin = job.Retried
		j.Attempt++
		return j, true, nil
	}
	if j, ok := c.queue.TryDequeue(); ok {
		c.inflight++
		j.Origin = job.FreshFromQueue
		j.Attempt++
		return j, true, nil
	}
	c.checkLocked()
	return job.Job{}, false, c.wake
}

// settle ends an attempt. A job passed as retry goes to the front of the
// retry queue before the in-flight count drops.
func (c *coordinator) settle(retry *job.Job) {
	c.mu.Lock()
	if retry != nil {
		c.retry.PushFront(retry.Retry())
	}
	c.inflight--
	c.checkLocked()
	close(c.wake)
	c.wake = make(chan struct{})
	c.mu.Unlock()
}

func (c *coordinator) checkLocked() {
	if c.finished || c.inflight > 0 || !c.queue.IsEmpty() || c.retry.Size() > 0 {
		return
	}
	c.finished = true
	close(c.done)
}

// queuesEmpty is the poll-mode check. It ignores jobs held by workers.
func (c *coordinator) queuesEmpty() bool {
	return c.queue.IsEmpty() && c.retry.Size() == 0
}

func (c *coordinator) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

func (c *coordinator) remaining() int {
	return c.queue.Len() + c.retry.Size()
}
