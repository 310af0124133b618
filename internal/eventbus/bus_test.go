package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFillsIDAndTime(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: JobStarted, Data: "a"})
	e := <-ch
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Time.IsZero())
	assert.Equal(t, "a", e.Data)
}

func TestSubscribePrefixFilter(t *testing.T) {
	b := New()
	jobs, unsub := b.Subscribe(4, "job.")
	defer unsub()

	b.Publish(Event{Type: RunStarted})
	b.Publish(Event{Type: JobFailed})

	require.Len(t, jobs, 1)
	assert.Equal(t, JobFailed, (<-jobs).Type)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: JobStarted})
	}
	unsub()
	unsub()
	b.Publish(Event{Type: JobStarted})
}
