package mq

import (
	"context"
	"time"

	"envpool/internal/eventbus"
	rtsup "envpool/internal/runtime/supervisor"
	"envpool/pkg/logx"
)

// Forwarded event families.
var forwardedPrefixes = []string{"run.", "job.", "lease."}

type Config struct {
	URL      string
	Exchange string
}

// Forwarder subscribes to the bus and republishes to AMQP. A broken
// connection is redialed with backoff; events published meanwhile are lost.
type Forwarder struct {
	cfg  Config
	bus  eventbus.Bus
	dial Dialer
	log  logx.Logger
}

func NewForwarder(cfg Config, bus eventbus.Bus, dial Dialer, log logx.Logger) *Forwarder {
	if dial == nil {
		dial = DialAMQP
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Forwarder{cfg: cfg, bus: bus, dial: dial, log: log.With(logx.Comp("mq"))}
}

// Run blocks until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(f.log), rtsup.WithCancelOnError(false))
	sup.GoRestart("forward", f.forwardOnce, time.Second, 30*time.Second)
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = sup.Stop(stopCtx)
	return nil
}

// forwardOnce holds one connection until it fails or ctx ends.
func (f *Forwarder) forwardOnce(ctx context.Context) error {
	ch, closeConn, err := f.dial(f.cfg.URL)
	if err != nil {
		return err
	}
	defer func() {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
	}()

	pub, err := NewPublisher(ch, f.cfg.Exchange)
	if err != nil {
		return err
	}

	events, unsubscribe := f.bus.Subscribe(256, forwardedPrefixes...)
	defer unsubscribe()
	f.log.Info("forwarding events", logx.String("exchange", pub.exchange))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := pub.Publish(pctx, ev)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
