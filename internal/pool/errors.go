package pool

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("pool: run already in progress")
	ErrNoRunner       = errors.New("pool: runner is required")
	ErrNoClient       = errors.New("pool: lease client is required")
	ErrNoSink         = errors.New("pool: result sink is required")
)

// TaskFailure is a failed attempt: a runner error, a panic, an attempt
// timeout or a sink write error. It always leads to a retry unless the
// attempt limit is reached.
type TaskFailure struct {
	Key     string
	Attempt int
	Err     error
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("job %s attempt %d: %v", e.Key, e.Attempt, e.Err)
}

func (e *TaskFailure) Unwrap() error { return e.Err }

// errPanic wraps a recovered panic value.
type errPanic struct {
	v     any
	stack string
}

func (e errPanic) Error() string { return fmt.Sprintf("panic: %v", e.v) }

// IsPanic reports whether err came from a recovered panic.
func IsPanic(err error) bool {
	var p errPanic
	return errors.As(err, &p)
}
