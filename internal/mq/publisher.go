// Package mq forwards pool events to an AMQP topic exchange so other
// services can follow runs without polling.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"envpool/internal/eventbus"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "envpool.events"

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel. The returned close func releases everything the
// channel depends on.
type Dialer func(url string) (Channel, func() error, error)

// DialAMQP is the production Dialer.
func DialAMQP(url string) (Channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn.Close, nil
}

// Publisher writes events to one topic exchange. The routing key is the
// event type, e.g. "job.abandoned", so consumers bind with "job.#".
type Publisher struct {
	ch       Channel
	exchange string
}

// NewPublisher declares the exchange (durable topic) and returns a publisher
// bound to it.
func NewPublisher(ch Channel, exchange string) (*Publisher, error) {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{ch: ch, exchange: exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, ev eventbus.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ts,
		Type:         ev.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", p.exchange, ev.Type, err)
	}
	return nil
}
