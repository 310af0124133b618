package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	rtsup "envpool/internal/runtime/supervisor"
	"envpool/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historyCap = 100

// Service queues notifications and delivers them through a Sender.
// It is safe for concurrent use.
type Service struct {
	cfg     Config
	sender  Sender
	log     logx.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	queue     chan Notification
	accepting bool
	enqueueWG sync.WaitGroup
	sup       *rtsup.Supervisor

	dmu   sync.Mutex
	dedup map[uint64]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		sender:  sender,
		log:     log.With(logx.Comp("notifier")),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup:   map[uint64]time.Time{},
	}
}

// Start launches the delivery workers. Calling it twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.Go(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		})
	}
}

// Stop refuses new notifications and drains the queue until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.queue == nil || !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	q, sup := s.queue, s.sup
	s.mu.Unlock()

	s.enqueueWG.Wait()
	close(q)
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		s.log.Warn("notifier stop timed out; pending messages dropped", logx.Int("pending", len(q)))
	}
}

// Notify enqueues n without blocking.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.enqueueWG.Add(1)
	s.mu.Unlock()
	defer s.enqueueWG.Done()

	if !s.dedupAllow(n) {
		s.log.Debug("notification suppressed as duplicate")
		return nil
	}
	select {
	case q <- n:
		return nil
	default:
		s.log.Warn("notification dropped", logx.Int("queue_cap", cap(q)))
		return ErrQueueFull
	}
}

// History returns the most recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(text string, err error) {
	it := HistoryItem{At: time.Now(), Text: text}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, n Notification) {
	text := n.Priority.prefix() + n.Text
	maxAttempts := 1 + s.cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.sender.SendText(callCtx, text)
		cancel()
		if err == nil {
			s.appendHistory(text, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt == maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(s.cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.appendHistory(text, lastErr)
	s.log.Warn("notification failed", logx.Err(lastErr), logx.Int("attempts", maxAttempts))
}

// dedupAllow reports whether n is new within DedupWindow and records it.
func (s *Service) dedupAllow(n Notification) bool {
	if s.cfg.DedupWindow <= 0 {
		return true
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%s", n.Priority, n.Text)
	key := h.Sum64()
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(s.cfg.DedupWindow)
	return true
}

// retryDelay is base*2^(attempt-1) with 0.7..1.3 jitter, capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
