package config

import (
	"reflect"
	"sort"
	"strings"

	"envpool/pkg/logx"
)

// Sections that can change without a restart.
var hotSections = map[string]bool{"logging": true, "observability": true}

// SummarizeConfigChange returns the changed top-level sections, safe log
// fields describing them, and whether any changed section needs a restart.
// Secrets are reported only as "*_set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		n := newCfg.Logging
		mark("logging",
			logx.String("logging.level", n.Level),
			logx.Bool("logging.console", n.Console),
			logx.Bool("logging.file_enabled", n.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		n := newCfg.Telegram
		mark("telegram",
			logx.Bool("telegram.token_set", strings.TrimSpace(n.Token) != ""),
			logx.Bool("telegram.chat_set", n.ChatID != 0),
			logx.Bool("telegram.notify_runs", n.NotifyRuns),
			logx.Bool("telegram.notify_abandoned", n.NotifyAbandoned),
		)
	}

	if oldCfg.Source != newCfg.Source {
		n := newCfg.Source
		mark("source",
			logx.String("source.path", n.Path),
			logx.String("source.format", n.Format),
			logx.Int("source.start_seq", n.StartSeq),
		)
	}

	if !reflect.DeepEqual(oldCfg.Lease, newCfg.Lease) {
		n := newCfg.Lease
		mark("lease",
			logx.String("lease.driver", n.Driver),
			logx.String("lease.base_url", n.MoreLogin.BaseURL),
			logx.Bool("lease.api_key_set", strings.TrimSpace(n.MoreLogin.APIKey) != ""),
			logx.Float64("lease.rate_per_sec", n.RatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Runner, newCfg.Runner) {
		mark("runner", logx.String("runner.driver", newCfg.Runner.Driver))
	}

	if oldCfg.Pool != newCfg.Pool {
		n := newCfg.Pool
		mark("pool",
			logx.Int("pool.workers", n.Workers),
			logx.String("pool.completion", n.Completion),
			logx.Int("pool.max_attempts", n.MaxAttempts),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		n := newCfg.Storage
		mark("storage",
			logx.String("storage.driver", n.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(n.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(n.DSN) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Observability, newCfg.Observability) {
		n := newCfg.Observability
		mark("observability",
			logx.Bool("observability.enabled", n.Enabled),
			logx.String("observability.addr", n.Addr),
			logx.Bool("observability.token_set", strings.TrimSpace(n.Token) != ""),
		)
	}

	if oldCfg.MQ != newCfg.MQ {
		mark("mq",
			logx.Bool("mq.enabled", newCfg.MQ.Enabled),
			logx.String("mq.exchange", newCfg.MQ.Exchange),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		mark("schedule",
			logx.String("schedule.cron", newCfg.Schedule.Cron),
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
		)
	}

	sort.Strings(changed)
	restart := false
	for _, s := range changed {
		if !hotSections[s] {
			restart = true
			break
		}
	}
	return changed, attrs, restart
}
