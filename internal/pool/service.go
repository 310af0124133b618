// Package pool drains a batch of jobs with a fixed number of workers. Each
// attempt leases a fresh environment, runs the job against it and always
// releases the environment. Failed jobs jump ahead of fresh ones.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"envpool/internal/eventbus"
	"envpool/internal/job"
	"envpool/internal/lease"
	rtsup "envpool/internal/runtime/supervisor"
	logx "envpool/pkg/logx"
)

type Service struct {
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	metrics *Metrics

	client lease.Client
	runner Runner
	sink   Sink

	mu   sync.Mutex
	cur  *run
	last *Report

	hmu     sync.Mutex
	history []HistoryItem
}

type Option func(*Service)

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }
func WithBus(bus eventbus.Bus) Option   { return func(s *Service) { s.bus = bus } }
func WithMetrics(m *Metrics) Option     { return func(s *Service) { s.metrics = m } }

func New(cfg Config, client lease.Client, runner Runner, sink Sink, opts ...Option) (*Service, error) {
	switch {
	case client == nil:
		return nil, ErrNoClient
	case runner == nil:
		return nil, ErrNoRunner
	case sink == nil:
		return nil, ErrNoSink
	}
	s := &Service{
		cfg:    cfg.withDefaults(),
		bus:    eventbus.Nop(),
		client: client,
		runner: runner,
		sink:   sink,
	}
	for _, o := range opts {
		o(s)
	}
	if s.bus == nil {
		s.bus = eventbus.Nop()
	}
	return s, nil
}

func (s *Service) Config() Config { return s.cfg }

// run is the state of one Run call.
type run struct {
	id      string
	started time.Time
	co      *coordinator

	mu     sync.Mutex
	report Report
}

func (r *run) update(fn func(rep *Report)) {
	r.mu.Lock()
	fn(&r.report)
	r.mu.Unlock()
}

func (r *run) snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := r.report
	rep.Abandoned = append([]string(nil), r.report.Abandoned...)
	return rep
}

// Run loads jobs into a fresh queue and blocks until every job succeeded
// (or was abandoned) or ctx is canceled. Per-job failures never surface as
// an error; the returned error is ctx.Err() or a setup problem.
func (s *Service) Run(ctx context.Context, jobs []job.Job) (Report, error) {
	r := &run{id: uuid.NewString(), started: time.Now(), co: newCoordinator(jobs)}
	r.report = Report{RunID: r.id, Loaded: len(jobs), Started: r.started}

	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		return Report{}, ErrAlreadyRunning
	}
	s.cur = r
	s.mu.Unlock()

	log := s.log.With(logx.String("run", r.id))
	log.Info("run started",
		logx.Int("jobs", len(jobs)),
		logx.Int("workers", s.cfg.Workers),
		logx.String("completion", string(s.cfg.Completion)),
	)
	s.publish(eventbus.RunStarted, r.id, r.snapshot())
	s.gauges(r)

	sup := rtsup.New(ctx, rtsup.WithLogger(log.With(logx.Comp("pool"))))
	defer sup.Cancel()
	for i := 1; i <= s.cfg.Workers; i++ {
		w := &worker{id: i, svc: s, run: r, log: log.With(logx.Int("worker", i))}
		sup.Go(fmt.Sprintf("worker-%d", i), w.loop)
	}

	switch s.cfg.Completion {
	case CompletionPoll:
		s.pollUntilEmpty(ctx, r)
	default:
		select {
		case <-r.co.done:
		case <-ctx.Done():
		}
	}
	// Workers see the canceled context or the finished coordinator; in-flight
	// attempts still release their environments before returning.
	if err := sup.Wait(context.Background()); err != nil {
		log.Error("worker exited with error", logx.Err(err))
	}

	r.update(func(rep *Report) {
		rep.Duration = time.Since(r.started)
		rep.Remaining = r.co.remaining()
		rep.Canceled = ctx.Err() != nil
	})
	rep := r.snapshot()

	s.mu.Lock()
	s.cur = nil
	s.last = &rep
	s.mu.Unlock()

	s.gauges(r)
	s.metrics.runDone()
	s.publish(eventbus.RunFinished, r.id, rep)
	log.Info("run finished",
		logx.Int("succeeded", rep.Succeeded),
		logx.Int("failures", rep.Failures),
		logx.Int("abandoned", len(rep.Abandoned)),
		logx.Int("remaining", rep.Remaining),
		logx.Duration("took", rep.Duration),
	)
	return rep, ctx.Err()
}

// pollUntilEmpty waits until both queues are observed empty on a periodic
// check. A job held by a worker is invisible to the check; that worker
// picks its own retry back up before it exits.
func (s *Service) pollUntilEmpty(ctx context.Context, r *run) {
	t := time.NewTicker(s.cfg.CheckInterval)
	defer t.Stop()
	for {
		s.gauges(r)
		if r.co.queuesEmpty() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Service) publish(typ, runID string, data any) {
	s.bus.Publish(eventbus.Event{Type: typ, RunID: runID, Data: data})
}

func (s *Service) gauges(r *run) {
	s.metrics.gauges(r.co.queue.Len(), r.co.retry.Size(), r.co.inFlight())
}

func (s *Service) record(item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if n := len(s.history); n > s.cfg.HistorySize {
		s.history = s.history[n-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	r := s.cur
	last := s.last
	s.mu.Unlock()

	snap := Snapshot{Workers: s.cfg.Workers, Completion: s.cfg.Completion}
	if last != nil {
		cp := *last
		snap.LastReport = &cp
	}
	if r != nil {
		rep := r.snapshot()
		snap.Running = true
		snap.RunID = r.id
		snap.QueueLen = r.co.queue.Len()
		snap.RetrySize = r.co.retry.Size()
		snap.RetryKeys = r.co.retry.Keys()
		snap.InFlight = r.co.inFlight()
		snap.Succeeded = rep.Succeeded
		snap.Failures = rep.Failures
		snap.Abandoned = len(rep.Abandoned)
		snap.LeaseErrors = rep.LeaseErrors
	}

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}
