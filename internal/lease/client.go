// Package lease manages the create, start, close and delete lifecycle of
// one remote browser environment bound to one job attempt.
package lease

import "context"

// Client talks to an environment provider. Every call is one round trip.
type Client interface {
	Create(ctx context.Context) (envID string, err error)
	Start(ctx context.Context, envID string) (endpoint string, err error)
	Close(ctx context.Context, envID string) error
	Delete(ctx context.Context, envID string) error
}

const (
	OpCreate = "create"
	OpStart  = "start"
	OpClose  = "close"
	OpDelete = "delete"
)
