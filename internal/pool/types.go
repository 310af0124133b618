package pool

import (
	"context"
	"time"

	"envpool/internal/job"
)

// Completion selects how the pool decides a run is finished.
type Completion string

const (
	// CompletionInflight finishes when both queues are empty and no worker
	// holds a job. Idle workers wait for work instead of exiting.
	CompletionInflight Completion = "inflight"
	// CompletionPoll checks the queues every CheckInterval and workers exit
	// as soon as they find both queues empty.
	CompletionPoll Completion = "poll"
)

const (
	DefaultCheckInterval = time.Second
	DefaultIdleInterval  = 250 * time.Millisecond
	DefaultHistorySize   = 200
	DefaultStatusText    = "done"
)

type Config struct {
	Workers    int
	Completion Completion

	CheckInterval time.Duration
	IdleInterval  time.Duration

	// MaxAttempts abandons a job after this many failed attempts. 0 retries forever.
	MaxAttempts int
	// AttemptTimeout bounds one runner invocation. 0 means no deadline.
	AttemptTimeout time.Duration

	CallTimeout  time.Duration
	ReleasePause time.Duration

	StatusText  string
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Completion != CompletionPoll {
		c.Completion = CompletionInflight
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.StatusText == "" {
		c.StatusText = DefaultStatusText
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

// Runner performs the automation for one job against a started environment.
// Any returned error, or a panic, means the attempt failed.
type Runner interface {
	Run(ctx context.Context, endpoint string, j job.Job) error
}

type RunnerFunc func(ctx context.Context, endpoint string, j job.Job) error

func (f RunnerFunc) Run(ctx context.Context, endpoint string, j job.Job) error {
	return f(ctx, endpoint, j)
}

// Sink records terminal success. It must be idempotent per identity.
type Sink interface {
	MarkDone(ctx context.Context, id job.Identity, status string) error
}

// Report summarizes one run.
type Report struct {
	RunID       string        `json:"run_id"`
	Loaded      int           `json:"loaded"`
	Succeeded   int           `json:"succeeded"`
	Failures    int           `json:"failures"`
	Retries     int           `json:"retries"`
	Abandoned   []string      `json:"abandoned,omitempty"`
	LeaseErrors int           `json:"lease_errors"`
	Remaining   int           `json:"remaining"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
	Canceled    bool          `json:"canceled,omitempty"`
}

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetried   Outcome = "retried"
	OutcomeAbandoned Outcome = "abandoned"
)

type HistoryItem struct {
	Key      string        `json:"key"`
	Attempt  int           `json:"attempt"`
	Origin   string        `json:"origin"`
	Worker   int           `json:"worker"`
	EnvID    string        `json:"env_id,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
}

// JobEvent is the payload of job.* events on the bus.
type JobEvent struct {
	RunID    string        `json:"run_id"`
	Key      string        `json:"key"`
	Row      int           `json:"row"`
	Attempt  int           `json:"attempt"`
	Origin   string        `json:"origin"`
	Worker   int           `json:"worker"`
	EnvID    string        `json:"env_id,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// LeaseEvent is the payload of lease.error events.
type LeaseEvent struct {
	RunID string `json:"run_id"`
	Op    string `json:"op"`
	EnvID string `json:"env_id,omitempty"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	Running    bool       `json:"running"`
	RunID      string     `json:"run_id,omitempty"`
	Workers    int        `json:"workers"`
	Completion Completion `json:"completion"`

	QueueLen  int      `json:"queue_len"`
	RetrySize int      `json:"retry_size"`
	RetryKeys []string `json:"retry_keys,omitempty"`
	InFlight  int      `json:"in_flight"`

	Succeeded   int `json:"succeeded"`
	Failures    int `json:"failures"`
	Abandoned   int `json:"abandoned"`
	LeaseErrors int `json:"lease_errors"`

	LastReport *Report       `json:"last_report,omitempty"`
	History    []HistoryItem `json:"history"`
}
