package lease_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envpool/internal/lease"
	"envpool/internal/lease/leasetest"
)

func opts() lease.Options { return lease.Options{ReleasePause: 0} }

func TestAcquireAndRelease(t *testing.T) {
	f := leasetest.New()
	l, err := lease.Acquire(context.Background(), f, opts())
	require.NoError(t, err)
	assert.Equal(t, lease.StateStarted, l.State)
	assert.Equal(t, "127.0.0.1:91", l.Endpoint)

	l.Release(context.Background())
	assert.Equal(t, lease.StateDeleted, l.State)
	assert.Empty(t, f.Live)

	l.Release(context.Background())
	assert.Equal(t, map[string]int{"env-1": 1}, f.Count(lease.OpDelete))
}

func TestStartFailureStillReleases(t *testing.T) {
	f := leasetest.New()
	f.FailNext(lease.OpStart, 1)

	var seen []string
	o := opts()
	o.OnError = func(op, envID string, err error) { seen = append(seen, op+":"+envID) }

	l, err := lease.Acquire(context.Background(), f, o)
	require.Error(t, err)
	var rse *lease.RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, lease.OpStart, rse.Op)
	assert.Equal(t, "env-1", l.ID)

	l.Release(context.Background())
	assert.Equal(t, 1, f.Count(lease.OpClose)["env-1"])
	assert.Equal(t, 1, f.Count(lease.OpDelete)["env-1"])
	assert.Equal(t, []string{"start:env-1"}, seen)
}

func TestCreateFailureHasNothingToRelease(t *testing.T) {
	f := leasetest.New()
	f.FailNext(lease.OpCreate, 1)

	l, err := lease.Acquire(context.Background(), f, opts())
	require.Error(t, err)
	l.Release(context.Background())
	assert.Empty(t, f.Count(lease.OpClose))
	assert.Empty(t, f.Count(lease.OpDelete))
}

func TestReleaseSwallowsErrorsAndIgnoresCancel(t *testing.T) {
	f := leasetest.New()
	l, err := lease.Acquire(context.Background(), f, opts())
	require.NoError(t, err)

	f.FailNext(lease.OpClose, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Release(ctx)

	assert.Equal(t, 1, f.Count(lease.OpClose)["env-1"])
	assert.Equal(t, 1, f.Count(lease.OpDelete)["env-1"])
	assert.Equal(t, lease.StateDeleted, l.State)
}

func TestCallTimeoutApplies(t *testing.T) {
	c := &slowClient{}
	_, err := lease.Acquire(context.Background(), c, lease.Options{CallTimeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimitedPassesThrough(t *testing.T) {
	f := leasetest.New()
	c := lease.Limited(f, 1000, 4)
	l, err := lease.Acquire(context.Background(), c, opts())
	require.NoError(t, err)
	l.Release(context.Background())
	assert.Len(t, f.Calls, 4)

	assert.Same(t, f, lease.Limited(f, 0, 0))
}

type slowClient struct{ leasetest.Fake }

func (s *slowClient) Create(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
