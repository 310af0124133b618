// Package trigger starts batch runs on a cron schedule.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"envpool/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Parser accepts 5-field and 6-field (leading seconds) specs plus
// descriptors such as "@hourly" and "@every 30m".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Spec     string
	Timezone string
	// RunOnStart fires once immediately, before the first scheduled tick.
	RunOnStart bool
}

// Service fires fn on schedule. A tick that lands while the previous run is
// still going is skipped, never queued.
type Service struct {
	cfg Config
	fn  func(ctx context.Context) error
	log logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	entry   cron.EntryID
	runs    int
	skipped int
	running bool
}

func New(cfg Config, fn func(ctx context.Context) error, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if _, err := Parser.Parse(strings.TrimSpace(cfg.Spec)); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", cfg.Spec, err)
	}
	return &Service{cfg: cfg, fn: fn, log: log.With(logx.Comp("trigger"))}, nil
}

// Run blocks until ctx is done, then waits for an in-progress run to return.
func (s *Service) Run(ctx context.Context) error {
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("schedule timezone %q: %w", tz, err)
		}
		loc = l
	}

	c := cron.New(cron.WithParser(Parser), cron.WithLocation(loc), cron.WithLogger(cronLogger{s.log}))
	id, err := c.AddFunc(strings.TrimSpace(s.cfg.Spec), func() { s.fire(ctx, "schedule") })
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.c, s.entry = c, id
	s.mu.Unlock()

	c.Start()
	s.log.Info("schedule started", logx.String("spec", s.cfg.Spec), logx.String("tz", loc.String()), logx.Time("next", c.Entry(id).Next))

	if s.cfg.RunOnStart {
		go s.fire(ctx, "start")
	}

	<-ctx.Done()
	<-c.Stop().Done()
	// RunOnStart is not tracked by cron.
	for s.isRunning() {
		time.Sleep(10 * time.Millisecond)
	}
	s.log.Info("schedule stopped", logx.Int("runs", s.Runs()))
	return nil
}

func (s *Service) fire(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if s.running {
		s.skipped++
		s.mu.Unlock()
		s.log.Warn("previous run still in progress; tick skipped", logx.String("reason", reason))
		return
	}
	s.running = true
	s.runs++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	err := s.fn(ctx)
	fields := []logx.Field{logx.String("reason", reason), logx.Duration("took", time.Since(start))}
	if next := s.Next(); !next.IsZero() {
		fields = append(fields, logx.Time("next", next))
	}
	if err != nil && ctx.Err() == nil {
		s.log.Error("scheduled run failed", append(fields, logx.Err(err))...)
		return
	}
	s.log.Info("scheduled run finished", fields...)
}

func (s *Service) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Next is the next scheduled fire time, zero when not started.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	c, id := s.c, s.entry
	s.mu.Unlock()
	if c == nil {
		return time.Time{}
	}
	return c.Entry(id).Next
}

func (s *Service) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Service) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// cronLogger routes cron's internal logging to logx at debug level.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
