package lease

import (
	"context"
	"time"

	logx "envpool/pkg/logx"
)

type State int

const (
	StateNone State = iota
	StateCreated
	StateStarted
	StateClosed
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateClosed:
		return "closed"
	case StateDeleted:
		return "deleted"
	default:
		return "none"
	}
}

const (
	DefaultCallTimeout  = 30 * time.Second
	DefaultReleasePause = time.Second
)

type Options struct {
	CallTimeout  time.Duration
	ReleasePause time.Duration
	Log          logx.Logger
	// OnError observes every failed provider call, release included.
	OnError func(op, envID string, err error)
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.ReleasePause < 0 {
		o.ReleasePause = 0
	}
	return o
}

// Lease is one environment owned by one worker for one attempt.
// It is not safe for concurrent use.
type Lease struct {
	ID       string
	Endpoint string
	State    State

	client   Client
	opts     Options
	released bool
}

// New returns an unacquired lease bound to c. Release on it is a no-op until
// Create has handed out an ID.
func New(c Client, opts Options) *Lease {
	return &Lease{client: c, opts: opts.withDefaults()}
}

// Acquire creates and starts an environment. The returned Lease is never nil:
// when start fails it still carries the ID so Release can clean up.
func Acquire(ctx context.Context, c Client, opts Options) (*Lease, error) {
	l := New(c, opts)
	return l, l.Acquire(ctx)
}

// Acquire runs create then start. The ID is recorded as soon as create
// returns, so a later failure or panic still leaves Release something to
// clean up.
func (l *Lease) Acquire(ctx context.Context) error {
	id, err := l.call(ctx, OpCreate, func(ctx context.Context) (string, error) { return l.client.Create(ctx) })
	if err != nil {
		return err
	}
	if id == "" {
		return l.fail(OpCreate, &RemoteServiceError{Op: OpCreate, Err: ErrNoEnvironment})
	}
	l.ID = id
	l.State = StateCreated

	ep, err := l.call(ctx, OpStart, func(ctx context.Context) (string, error) { return l.client.Start(ctx, id) })
	if err != nil {
		return err
	}
	l.Endpoint = ep
	l.State = StateStarted
	return nil
}

func (l *Lease) call(ctx context.Context, op string, fn func(ctx context.Context) (string, error)) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
	defer cancel()
	out, err := fn(cctx)
	if err != nil {
		return "", l.fail(op, AsRemote(op, err))
	}
	return out, nil
}

func (l *Lease) fail(op string, err error) error {
	if l.opts.OnError != nil {
		l.opts.OnError(op, l.ID, err)
	}
	return err
}

// Release closes then deletes the environment. It never returns an error:
// failures are logged and reported through OnError. Caller cancellation is
// ignored so shutdown does not leak environments. Calling it twice is a no-op.
func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.released {
		return
	}
	l.released = true
	if l.ID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := l.opts.Log.With(logx.String("env", l.ID))

	if _, err := l.call(ctx, OpClose, func(ctx context.Context) (string, error) { return "", l.client.Close(ctx, l.ID) }); err != nil {
		log.Warn("environment close failed", logx.String("state", l.State.String()), logx.Err(err))
	} else {
		l.State = StateClosed
	}

	if l.opts.ReleasePause > 0 {
		time.Sleep(l.opts.ReleasePause)
	}

	if _, err := l.call(ctx, OpDelete, func(ctx context.Context) (string, error) { return "", l.client.Delete(ctx, l.ID) }); err != nil {
		log.Warn("environment delete failed", logx.String("state", l.State.String()), logx.Err(err))
		return
	}
	l.State = StateDeleted
	log.Debug("environment released")
}
