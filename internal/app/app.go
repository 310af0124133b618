// Package app wires configuration into the running process: logging, the
// result store, the lease provider, the worker pool and its optional
// surfaces (HTTP, Telegram, AMQP, schedule).
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"envpool/internal/config"
	"envpool/internal/eventbus"
	"envpool/internal/mq"
	"envpool/internal/notifier"
	"envpool/internal/observability"
	"envpool/internal/pool"
	"envpool/internal/source"
	"envpool/internal/storage"
	"envpool/internal/trigger"
	"envpool/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Once runs a single batch even when a schedule is configured.
	Once bool
}

type App struct {
	opts Options
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *prometheus.Registry

	store storage.Store
	src   source.Source
	pool  *pool.Service

	notif *notifier.Service
	obs   *observability.Service
	fwd   *mq.Forwarder
}

// New loads and validates the config file and builds every component.
// Nothing runs until Run.
func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	tg, err := telegramClient(cfg)
	if err != nil {
		return nil, err
	}
	var sender logx.Sender
	if tg != nil {
		sender = tg
	}
	logs, root := logx.New(mapLogConfig(cfg), sender)
	log := root.With(logx.Comp("app"))
	cfgm.SetLogger(root.With(logx.Comp("config")))

	a := &App{
		opts: opts,
		cfgm: cfgm,
		cfg:  cfg,
		log:  log,
		logs: logs,
		bus:  eventbus.New(),
		reg:  prometheus.NewRegistry(),
	}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.store, err = storage.Open(mapStorageConfig(cfg), root.With(logx.Comp("storage")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = a.store.Close()
		_ = logs.Close()
		return nil, err
	}

	a.src, err = source.New(mapSourceConfig(cfg), storage.Done(a.store), root.With(logx.Comp("source")))
	if err != nil {
		return fail(err)
	}
	client, err := buildLeaseClient(cfg)
	if err != nil {
		return fail(err)
	}
	run, err := buildRunner(cfg, root)
	if err != nil {
		return fail(err)
	}
	a.pool, err = pool.New(mapPoolConfig(cfg), client, run, a.store,
		pool.WithLogger(root.With(logx.Comp("pool"))),
		pool.WithBus(a.bus),
		pool.WithMetrics(pool.NewMetrics(a.reg)),
	)
	if err != nil {
		return fail(err)
	}

	if tg != nil && (cfg.Telegram.NotifyRuns || cfg.Telegram.NotifyAbandoned) {
		a.notif = notifier.New(notifier.Config{RetryMax: 3, DedupWindow: time.Minute}, tg, root)
	}
	a.obs = observability.New(mapObservabilityConfig(cfg), observability.Deps{
		Snapshot: func() any { return a.pool.Snapshot() },
		Gatherer: a.reg,
		Bus:      a.bus,
	}, root)
	if cfg.MQ.Enabled {
		a.fwd = mq.NewForwarder(mq.Config{URL: cfg.MQ.URL, Exchange: cfg.MQ.Exchange}, a.bus, nil, root)
	}
	return a, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Run executes one batch, or keeps running batches on the schedule until
// ctx is canceled. The returned error is the batch error in single-run mode.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	// Background surfaces stop when the batch side returns.
	bgCtx, stopBackground := context.WithCancel(gctx)
	defer stopBackground()

	a.obs.Start(bgCtx)
	if a.notif != nil {
		a.notif.Start(bgCtx)
		g.Go(func() error {
			a.notif.Watch(bgCtx, a.bus, notifier.WatchOptions{
				Runs:      a.cfg.Telegram.NotifyRuns,
				Abandoned: a.cfg.Telegram.NotifyAbandoned,
			})
			return nil
		})
	}
	if a.fwd != nil {
		g.Go(func() error { return a.fwd.Run(bgCtx) })
	}
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		g.Go(func() error {
			watchdog(bgCtx, a.log, interval/2)
			return nil
		})
	}
	g.Go(func() error { return a.cfgm.Watch(bgCtx) })
	g.Go(func() error {
		a.reloadLoop(bgCtx)
		return nil
	})

	schedule := strings.TrimSpace(a.cfg.Schedule.Cron)
	g.Go(func() error {
		defer stopBackground()
		notifySystemd(a.log, daemon.SdNotifyReady)
		defer notifySystemd(a.log, daemon.SdNotifyStopping)

		if schedule == "" || a.opts.Once {
			_, err := a.RunBatch(gctx)
			return err
		}
		tr, err := trigger.New(trigger.Config{
			Spec:       schedule,
			Timezone:   a.cfg.Schedule.Timezone,
			RunOnStart: a.cfg.Schedule.RunOnStart,
		}, a.scheduledBatch, a.log)
		if err != nil {
			return err
		}
		return tr.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// scheduledBatch runs one batch for the trigger. An empty account list only
// skips this tick; the schedule keeps going.
func (a *App) scheduledBatch(ctx context.Context) error {
	_, err := a.RunBatch(ctx)
	if errors.Is(err, source.ErrEmpty) {
		a.log.Warn("scheduled run skipped; account list is empty")
		return nil
	}
	return err
}

// RunBatch loads the account list and drives it through the pool.
func (a *App) RunBatch(ctx context.Context) (pool.Report, error) {
	jobs, err := a.src.Load(ctx)
	if err != nil {
		return pool.Report{}, fmt.Errorf("load accounts: %w", err)
	}

	rep, err := a.pool.Run(ctx, jobs)
	fields := []logx.Field{
		logx.String("run_id", rep.RunID),
		logx.Int("loaded", rep.Loaded),
		logx.Int("succeeded", rep.Succeeded),
		logx.Int("failures", rep.Failures),
		logx.Int("abandoned", len(rep.Abandoned)),
		logx.Int("remaining", rep.Remaining),
		logx.Duration("took", rep.Duration),
	}
	switch {
	case err != nil:
		a.log.Error("batch failed", append(fields, logx.Err(err))...)
	case rep.Canceled:
		a.log.Warn("batch canceled", fields...)
	default:
		a.log.Info("batch finished", fields...)
	}
	return rep, err
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.notif != nil {
		a.notif.Stop(ctx)
	}
	a.obs.Stop(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	_ = a.logs.Close()
}

// watchdog pings systemd until ctx is done.
func watchdog(ctx context.Context, log logx.Logger, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			notifySystemd(log, daemon.SdNotifyWatchdog)
		}
	}
}

// notifySystemd is a no-op outside systemd.
func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
