package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"envpool/internal/config"
	"envpool/internal/lease"
	"envpool/internal/lease/docker"
	"envpool/internal/lease/morelogin"
	"envpool/internal/notifier/telegram"
	"envpool/internal/observability"
	"envpool/internal/pool"
	"envpool/internal/runner"
	"envpool/internal/source"
	"envpool/internal/storage"
	"envpool/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Remote: logx.RemoteConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// telegramClient is nil when no Telegram output is configured.
func telegramClient(cfg *config.Config) (*telegram.Client, error) {
	t := cfg.Telegram
	if strings.TrimSpace(t.Token) == "" {
		return nil, nil
	}
	return telegram.New(telegram.Config{Token: t.Token, ChatID: t.ChatID, ThreadID: t.ThreadID})
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	sheet := sc.Sheet
	// The sheet sink writes status back into the source workbook by default.
	if (driver == "sheet" || driver == "xlsx") && path == "" {
		path = cfg.Source.Path
		if sheet == "" {
			sheet = cfg.Source.Sheet
		}
	}
	keyCol := sc.KeyColumn
	if keyCol == "" {
		keyCol = cfg.Source.KeyColumn
	}
	return storage.Config{
		Driver:       driver,
		Path:         path,
		BusyTimeout:  config.DurationOr(sc.BusyTimeout, time.Second),
		DSN:          sc.DSN,
		Table:        sc.Table,
		Addr:         sc.Addr,
		Password:     sc.Password,
		DB:           sc.DB,
		KeyPrefix:    sc.KeyPrefix,
		Sheet:        sheet,
		KeyColumn:    keyCol,
		StatusColumn: sc.StatusColumn,
		CompactEvery: sc.CompactEvery,
	}
}

func mapSourceConfig(cfg *config.Config) source.Config {
	s := cfg.Source
	return source.Config{
		Path:      s.Path,
		Format:    s.Format,
		Sheet:     s.Sheet,
		KeyColumn: s.KeyColumn,
		SeqColumn: s.SeqColumn,
		StartSeq:  s.StartSeq,
		SkipDone:  s.SkipDone,
	}
}

func mapPoolConfig(cfg *config.Config) pool.Config {
	p := cfg.Pool
	return pool.Config{
		Workers:        p.Workers,
		Completion:     pool.Completion(strings.ToLower(strings.TrimSpace(p.Completion))),
		CheckInterval:  config.DurationOr(p.CheckInterval, pool.DefaultCheckInterval),
		IdleInterval:   config.DurationOr(p.IdleInterval, pool.DefaultIdleInterval),
		MaxAttempts:    p.MaxAttempts,
		AttemptTimeout: config.DurationOr(p.AttemptTimeout, 0),
		CallTimeout:    config.DurationOr(cfg.Lease.CallTimeout, lease.DefaultCallTimeout),
		ReleasePause:   config.DurationOr(cfg.Lease.ReleasePause, lease.DefaultReleasePause),
		StatusText:     p.StatusText,
		HistorySize:    p.HistorySize,
	}
}

// buildLeaseClient returns the provider client, rate limited when configured.
func buildLeaseClient(cfg *config.Config) (lease.Client, error) {
	l := cfg.Lease
	callTimeout := config.DurationOr(l.CallTimeout, lease.DefaultCallTimeout)

	var c lease.Client
	switch strings.ToLower(strings.TrimSpace(l.Driver)) {
	case "", "morelogin":
		ml, err := morelogin.New(morelogin.Config{
			BaseURL:        l.MoreLogin.BaseURL,
			APIID:          l.MoreLogin.APIID,
			APIKey:         l.MoreLogin.APIKey,
			OperatorSystem: l.MoreLogin.OperatorSystem,
			DebugHost:      l.MoreLogin.DebugHost,
			Timeout:        callTimeout,
		}, &http.Client{Timeout: callTimeout})
		if err != nil {
			return nil, err
		}
		c = ml
	case "docker":
		d, err := docker.New(docker.Config{
			Image:        l.Docker.Image,
			DevToolsPort: l.Docker.DevToolsPort,
			BindHost:     l.Docker.BindHost,
			NamePrefix:   l.Docker.NamePrefix,
			StopTimeout:  config.DurationOr(l.Docker.StopTimeout, 0),
			Env:          l.Docker.Env,
		})
		if err != nil {
			return nil, err
		}
		c = d
	default:
		return nil, fmt.Errorf("%w: unknown lease driver %q", lease.ErrInvalidConfig, l.Driver)
	}

	if l.RatePerSec > 0 {
		c = lease.Limited(c, l.RatePerSec, l.Burst)
	}
	return c, nil
}

func buildRunner(cfg *config.Config, log logx.Logger) (pool.Runner, error) {
	r := cfg.Runner
	switch strings.ToLower(strings.TrimSpace(r.Driver)) {
	case "", "exec":
		e, err := runner.NewExec(runner.ExecConfig{
			Command:    r.Exec.Command,
			Args:       r.Exec.Args,
			Dir:        r.Exec.Dir,
			Env:        r.Exec.Env,
			StderrTail: r.Exec.StderrTail,
			KillGrace:  config.DurationOr(r.Exec.KillGrace, 0),
		}, log)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "devtools":
		return runner.NewDevTools(config.DurationOr(r.DevTools.Timeout, 0), log), nil
	default:
		return nil, fmt.Errorf("%w: unknown runner driver %q", config.ErrInvalid, r.Driver)
	}
}

func mapObservabilityConfig(cfg *config.Config) observability.Config {
	o := cfg.Observability
	return observability.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Token:         o.Token,
		Pprof:         o.Pprof,
		Prefix:        o.Prefix,
		AllowInsecure: o.AllowInsecure,
		CORSOrigins:   o.CORSOrigins,
		ReadTimeout:   config.DurationOr(o.ReadTimeout, 10*time.Second),
		WriteTimeout:  config.DurationOr(o.WriteTimeout, 0),
		IdleTimeout:   config.DurationOr(o.IdleTimeout, 60*time.Second),
	}
}
