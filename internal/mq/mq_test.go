package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"envpool/internal/eventbus"
	"envpool/pkg/logx"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  []string
	published []published
	failAfter int // publish errors once this many messages went out; 0 disables
	closed    bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind != amqp.ExchangeTopic || !durable {
		return errors.New("unexpected exchange kind")
	}
	c.declared = append(c.declared, name)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter > 0 && len(c.published) >= c.failAfter {
		return amqp.ErrClosed
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func TestPublisherRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultExchange}, ch.declared)

	ev := eventbus.Event{ID: "e1", Type: eventbus.JobAbandoned, RunID: "r1", Time: time.Unix(100, 0)}
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "job.abandoned", got.key)
	assert.Equal(t, "e1", got.msg.MessageId)
	assert.Equal(t, uint8(amqp.Persistent), got.msg.DeliveryMode)

	var decoded eventbus.Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, "r1", decoded.RunID)
}

func TestForwarderRedialsAfterPublishFailure(t *testing.T) {
	bus := eventbus.New()
	first := &fakeChannel{failAfter: 1}
	second := &fakeChannel{}
	var dials atomic.Int32
	dial := func(string) (Channel, func() error, error) {
		if dials.Add(1) == 1 {
			return first, nil, nil
		}
		return second, nil, nil
	}

	f := NewForwarder(Config{URL: "amqp://test", Exchange: "x"}, bus, dial, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.JobSucceeded})
		bus.Publish(eventbus.Event{Type: eventbus.ConfigApplied}) // not forwarded
		return second.count() > 0
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	<-done
	assert.True(t, first.closed)
	assert.GreaterOrEqual(t, dials.Load(), int32(2))
	for _, p := range second.published {
		assert.Equal(t, eventbus.JobSucceeded, p.key)
	}
}
