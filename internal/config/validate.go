package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalid marks configuration problems. They are fatal before any worker
// starts.
var ErrInvalid = errors.New("invalid configuration")

// Same grammar the scheduler uses.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks required settings and parses every duration once so bad
// values fail at startup. All problems are joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			if !errors.Is(err, ErrInvalid) {
				err = fmt.Errorf("%w: %w", ErrInvalid, err)
			}
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if strings.TrimSpace(c.Source.Path) == "" {
		add(invalid("source.path is required"))
	}

	if c.Pool.Workers < 1 {
		add(invalid("pool.workers must be a positive integer"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Pool.Completion)) {
	case "", "inflight", "poll":
	default:
		add(invalid("pool.completion must be inflight or poll, got %q", c.Pool.Completion))
	}
	if c.Pool.MaxAttempts < 0 {
		add(invalid("pool.max_attempts must be >= 0"))
	}
	dur("pool.check_interval", c.Pool.CheckInterval)
	dur("pool.idle_interval", c.Pool.IdleInterval)
	dur("pool.attempt_timeout", c.Pool.AttemptTimeout)

	dur("lease.call_timeout", c.Lease.CallTimeout)
	dur("lease.release_pause", c.Lease.ReleasePause)
	if c.Lease.RatePerSec < 0 {
		add(invalid("lease.rate_per_sec must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Lease.Driver)) {
	case "", "morelogin":
		ml := c.Lease.MoreLogin
		if strings.TrimSpace(ml.BaseURL) == "" {
			add(invalid("lease.morelogin.base_url is required"))
		} else if u, err := url.Parse(ml.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add(invalid("lease.morelogin.base_url %q is not an absolute URL", ml.BaseURL))
		}
		if strings.TrimSpace(ml.APIID) == "" {
			add(invalid("lease.morelogin.api_id is required"))
		}
		if strings.TrimSpace(ml.APIKey) == "" {
			add(invalid("lease.morelogin.api_key is required"))
		}
		switch strings.ToLower(strings.TrimSpace(ml.OperatorSystem)) {
		case "", "windows", "window", "mac", "macos":
		default:
			add(invalid("lease.morelogin.operator_system must be windows or mac, got %q", ml.OperatorSystem))
		}
	case "docker":
		dur("lease.docker.stop_timeout", c.Lease.Docker.StopTimeout)
		if p := c.Lease.Docker.DevToolsPort; p < 0 || p > 65535 {
			add(invalid("lease.docker.devtools_port out of range"))
		}
	default:
		add(invalid("lease.driver must be morelogin or docker, got %q", c.Lease.Driver))
	}

	switch strings.ToLower(strings.TrimSpace(c.Runner.Driver)) {
	case "", "exec":
		if strings.TrimSpace(c.Runner.Exec.Command) == "" {
			add(invalid("runner.exec.command is required"))
		}
		dur("runner.exec.kill_grace", c.Runner.Exec.KillGrace)
	case "devtools":
		dur("runner.devtools.timeout", c.Runner.DevTools.Timeout)
	default:
		add(invalid("runner.driver must be exec or devtools, got %q", c.Runner.Driver))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory":
	case "file", "sqlite", "sqlite3", "sheet", "xlsx":
		if strings.TrimSpace(c.Storage.Path) == "" && !isSheet(c.Storage.Driver) {
			add(invalid("storage.path is required for %s", c.Storage.Driver))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(invalid("storage.dsn is required for postgres"))
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Addr) == "" {
			add(invalid("storage.addr is required for redis"))
		}
	default:
		add(invalid("unknown storage.driver %q", c.Storage.Driver))
	}
	dur("storage.busy_timeout", c.Storage.BusyTimeout)

	if c.Telegram.NotifyRuns || c.Telegram.NotifyAbandoned || c.Logging.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0 {
			add(invalid("telegram.token and telegram.chat_id are required when telegram output is enabled"))
		}
	}
	if c.MQ.Enabled && strings.TrimSpace(c.MQ.URL) == "" {
		add(invalid("mq.url is required when mq is enabled"))
	}

	if o := c.Observability; o.Enabled {
		dur("observability.read_timeout", o.ReadTimeout)
		dur("observability.write_timeout", o.WriteTimeout)
		dur("observability.idle_timeout", o.IdleTimeout)
	}

	if spec := strings.TrimSpace(c.Schedule.Cron); spec != "" {
		if _, err := cronParser.Parse(spec); err != nil {
			add(invalid("schedule.cron %q: %v", spec, err))
		}
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(invalid("schedule.timezone %q: %v", tz, err))
		}
	}
	return errors.Join(errs...)
}

// The sheet sink writes into the source workbook when no path is given.
func isSheet(driver string) bool {
	d := strings.ToLower(strings.TrimSpace(driver))
	return d == "sheet" || d == "xlsx"
}
