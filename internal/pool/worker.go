package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"envpool/internal/eventbus"
	"envpool/internal/job"
	"envpool/internal/lease"
	logx "envpool/pkg/logx"
)

type worker struct {
	id  int
	svc *Service
	run *run
	log logx.Logger
}

func (w *worker) loop(ctx context.Context) error {
	co := w.run.co
	for {
		if ctx.Err() != nil {
			return nil
		}
		j, ok, wake := co.take()
		if !ok {
			if w.svc.cfg.Completion == CompletionPoll {
				w.log.Debug("no work left, worker exiting")
				return nil
			}
			idle := time.NewTimer(w.svc.cfg.IdleInterval)
			select {
			case <-ctx.Done():
				idle.Stop()
				return nil
			case <-co.done:
				idle.Stop()
				return nil
			case <-wake:
				idle.Stop()
			case <-idle.C:
			}
			continue
		}
		w.attempt(ctx, j)
	}
}

// attempt runs one job through lease, runner and sink, then settles it with
// the coordinator and releases the environment.
func (w *worker) attempt(ctx context.Context, j job.Job) {
	s := w.svc
	started := time.Now()
	log := w.log.With(logx.String("key", j.Key), logx.Int("attempt", j.Attempt))
	ev := JobEvent{RunID: w.run.id, Key: j.Key, Row: j.Row, Attempt: j.Attempt, Origin: j.Origin.String(), Worker: w.id}

	log.Debug("job started", logx.String("origin", j.Origin.String()))
	s.publish(eventbus.JobStarted, w.run.id, ev)

	opts := lease.Options{
		CallTimeout:  s.cfg.CallTimeout,
		ReleasePause: s.cfg.ReleasePause,
		Log:          log,
		OnError: func(op, envID string, err error) {
			w.run.update(func(rep *Report) { rep.LeaseErrors++ })
			s.metrics.leaseError(op)
			s.publish(eventbus.LeaseError, w.run.id, LeaseEvent{RunID: w.run.id, Op: op, EnvID: envID, Key: j.Key, Error: err.Error()})
		},
	}

	l := lease.New(s.client, opts)
	err := safely(func() error {
		if err := l.Acquire(ctx); err != nil {
			return err
		}
		if err := w.runTask(ctx, l.Endpoint, j); err != nil {
			return &TaskFailure{Key: j.Key, Attempt: j.Attempt, Err: err}
		}
		if err := s.sink.MarkDone(ctx, j.Identity(), s.cfg.StatusText); err != nil {
			return &TaskFailure{Key: j.Key, Attempt: j.Attempt, Err: fmt.Errorf("mark done: %w", err)}
		}
		return nil
	})
	ev.EnvID = l.ID
	var p errPanic
	if errors.As(err, &p) {
		log.Error("job panicked", logx.Any("panic", p.v), logx.String("stack", p.stack))
	}

	outcome := w.settle(j, err, log)

	// Release after settling, whatever happened above.
	if rerr := safely(func() error { l.Release(ctx); return nil }); rerr != nil {
		log.Error("lease release panicked", logx.Err(rerr))
	}

	took := time.Since(started)
	ev.Duration = took
	if err != nil {
		ev.Error = err.Error()
	}
	switch outcome {
	case OutcomeSucceeded:
		s.publish(eventbus.JobSucceeded, w.run.id, ev)
	case OutcomeAbandoned:
		s.publish(eventbus.JobFailed, w.run.id, ev)
		s.publish(eventbus.JobAbandoned, w.run.id, ev)
	default:
		s.publish(eventbus.JobFailed, w.run.id, ev)
		s.publish(eventbus.JobRetried, w.run.id, ev)
	}
	s.metrics.observeAttempt(outcome, took)
	s.gauges(w.run)
	s.record(HistoryItem{
		Key: j.Key, Attempt: j.Attempt, Origin: j.Origin.String(), Worker: w.id, EnvID: ev.EnvID,
		Started: started, Duration: took, Outcome: outcome, Error: ev.Error,
	})
}

func (w *worker) settle(j job.Job, err error, log logx.Logger) Outcome {
	s := w.svc
	co := w.run.co
	if err == nil {
		w.run.update(func(rep *Report) { rep.Succeeded++ })
		co.settle(nil)
		log.Info("job succeeded")
		return OutcomeSucceeded
	}

	w.run.update(func(rep *Report) { rep.Failures++ })
	if s.cfg.MaxAttempts > 0 && j.Attempt >= s.cfg.MaxAttempts {
		w.run.update(func(rep *Report) { rep.Abandoned = append(rep.Abandoned, j.Key) })
		co.settle(nil)
		log.Error("job abandoned", logx.Int("max_attempts", s.cfg.MaxAttempts), logx.Err(err))
		return OutcomeAbandoned
	}
	w.run.update(func(rep *Report) { rep.Retries++ })
	co.settle(&j)
	log.Warn("job failed, queued for retry", logx.Int("retry_size", co.retry.Size()), logx.Err(err))
	return OutcomeRetried
}

func (w *worker) runTask(ctx context.Context, endpoint string, j job.Job) error {
	if t := w.svc.cfg.AttemptTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return safely(func() error { return w.svc.runner.Run(ctx, endpoint, j) })
}

// safely converts a panic in fn into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanic{v: r, stack: string(debug.Stack())}
		}
	}()
	return fn()
}
