// Package leasetest provides an in-memory lease.Client for tests.
package leasetest

import (
	"context"
	"fmt"
	"sync"

	"envpool/internal/lease"
)

// Fake records every call and can be told to fail specific operations.
type Fake struct {
	mu   sync.Mutex
	next int

	Calls []Call
	// Fail maps an op to the number of upcoming calls of that op that fail.
	Fail map[string]int
	// Live tracks environments created and not yet deleted.
	Live map[string]bool
}

type Call struct {
	Op    string
	EnvID string
}

func New() *Fake {
	return &Fake{Fail: map[string]int{}, Live: map[string]bool{}}
}

// FailNext makes the next n calls of op return a RemoteServiceError.
func (f *Fake) FailNext(op string, n int) {
	f.mu.Lock()
	f.Fail[op] += n
	f.mu.Unlock()
}

func (f *Fake) record(op, id string) error {
	f.Calls = append(f.Calls, Call{Op: op, EnvID: id})
	if f.Fail[op] > 0 {
		f.Fail[op]--
		return &lease.RemoteServiceError{Op: op, Code: 1, Message: "injected"}
	}
	return nil
}

func (f *Fake) Create(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(lease.OpCreate, ""); err != nil {
		return "", err
	}
	f.next++
	id := fmt.Sprintf("env-%d", f.next)
	f.Calls[len(f.Calls)-1].EnvID = id
	f.Live[id] = true
	return id, nil
}

func (f *Fake) Start(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(lease.OpStart, id); err != nil {
		return "", err
	}
	return "127.0.0.1:9" + id[len("env-"):], nil
}

func (f *Fake) Close(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(lease.OpClose, id)
}

func (f *Fake) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(lease.OpDelete, id); err != nil {
		return err
	}
	delete(f.Live, id)
	return nil
}

// Count returns how many calls of op were made, per environment ID.
func (f *Fake) Count(op string) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, c := range f.Calls {
		if c.Op == op {
			out[c.EnvID]++
		}
	}
	return out
}

// Created lists every environment ID handed out.
func (f *Fake) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, c := range f.Calls {
		if c.Op == lease.OpCreate && c.EnvID != "" {
			ids = append(ids, c.EnvID)
		}
	}
	return ids
}
