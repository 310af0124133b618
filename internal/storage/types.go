package storage

import (
	"context"
	"errors"
	"time"

	"envpool/internal/job"
)

var (
	ErrClosed        = errors.New("storage: closed")
	ErrUnknownDriver = errors.New("storage: unknown driver")
)

type Config struct {
	Driver string

	// Path is the file for file, sqlite and sheet drivers.
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	DSN   string // postgres
	Table string // postgres; default envpool_results

	Addr      string // redis
	Password  string // redis
	DB        int    // redis
	KeyPrefix string // redis; default envpool

	Sheet        string // sheet; first sheet when empty
	KeyColumn    string // sheet; header of the key column, default email
	StatusColumn string // sheet; header of the status column, default status
	// CompactEvery compacts the file journal after this many writes.
	CompactEvery int
}

// Result is one recorded outcome.
type Result struct {
	Key    string    `json:"key"`
	Row    int       `json:"row"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Store records results. MarkDone is an upsert: a second call for the same
// key only replaces the status.
type Store interface {
	MarkDone(ctx context.Context, id job.Identity, status string) error
	Lookup(ctx context.Context, key string) (Result, bool, error)
	Results(ctx context.Context) ([]Result, error)
	Close() error
}

// Done adapts a Store to the source package's resume check.
func Done(s Store) DoneChecker { return DoneChecker{s: s} }

type DoneChecker struct{ s Store }

func (d DoneChecker) IsDone(ctx context.Context, key string) (bool, error) {
	r, ok, err := d.s.Lookup(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && r.Status != "", nil
}
