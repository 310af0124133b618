package config

// Config is the whole process configuration. Files may be JSON or YAML;
// unknown keys are rejected. Durations are Go duration strings ("30s").
// ${NAME} references are replaced from the environment before parsing.
type Config struct {
	Logging       LoggingConfig       `json:"logging"`
	Telegram      TelegramConfig      `json:"telegram,omitempty"`
	Source        SourceConfig        `json:"source"`
	Lease         LeaseConfig         `json:"lease"`
	Runner        RunnerConfig        `json:"runner"`
	Pool          PoolConfig          `json:"pool"`
	Storage       StorageConfig       `json:"storage,omitempty"`
	Observability ObservabilityConfig `json:"observability,omitempty"`
	MQ            MQConfig            `json:"mq,omitempty"`
	Schedule      ScheduleConfig      `json:"schedule,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig is the operator chat used for run summaries, abandoned-job
// alerts and the remote log sink.
type TelegramConfig struct {
	Token    string `json:"token"` // never logged
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// NotifyRuns sends a summary when a run finishes.
	NotifyRuns bool `json:"notify_runs"`
	// NotifyAbandoned alerts on every abandoned job.
	NotifyAbandoned bool `json:"notify_abandoned"`
}

type SourceConfig struct {
	Path      string `json:"path"`
	Format    string `json:"format,omitempty"`
	Sheet     string `json:"sheet,omitempty"`
	KeyColumn string `json:"key_column,omitempty"`
	SeqColumn string `json:"seq_column,omitempty"`
	StartSeq  int    `json:"start_seq,omitempty"`
	SkipDone  bool   `json:"skip_done,omitempty"`
}

// LeaseConfig selects and tunes the environment provider.
//
// Defaults: call_timeout 30s, release_pause 1s, no rate limit.
type LeaseConfig struct {
	Driver       string          `json:"driver"` // morelogin | docker
	CallTimeout  string          `json:"call_timeout,omitempty"`
	ReleasePause string          `json:"release_pause,omitempty"`
	RatePerSec   float64         `json:"rate_per_sec,omitempty"`
	Burst        int             `json:"burst,omitempty"`
	MoreLogin    MoreLoginConfig `json:"morelogin,omitempty"`
	Docker       DockerConfig    `json:"docker,omitempty"`
}

type MoreLoginConfig struct {
	BaseURL        string `json:"base_url"`
	APIID          string `json:"api_id"`
	APIKey         string `json:"api_key"` // never logged
	OperatorSystem string `json:"operator_system,omitempty"`
	DebugHost      string `json:"debug_host,omitempty"`
}

type DockerConfig struct {
	Image        string   `json:"image,omitempty"`
	DevToolsPort int      `json:"devtools_port,omitempty"`
	BindHost     string   `json:"bind_host,omitempty"`
	NamePrefix   string   `json:"name_prefix,omitempty"`
	StopTimeout  string   `json:"stop_timeout,omitempty"`
	Env          []string `json:"env,omitempty"`
}

type RunnerConfig struct {
	Driver   string         `json:"driver"` // exec | devtools
	Exec     ExecConfig     `json:"exec,omitempty"`
	DevTools DevToolsConfig `json:"devtools,omitempty"`
}

type ExecConfig struct {
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	Dir        string   `json:"dir,omitempty"`
	Env        []string `json:"env,omitempty"`
	StderrTail int      `json:"stderr_tail,omitempty"`
	KillGrace  string   `json:"kill_grace,omitempty"`
}

type DevToolsConfig struct {
	Timeout string `json:"timeout,omitempty"`
}

// PoolConfig controls the worker pool.
//
// Defaults: completion inflight, check_interval 1s, idle_interval 250ms,
// max_attempts 0 (retry forever), attempt_timeout 0 (none), status_text done.
type PoolConfig struct {
	Workers        int    `json:"workers"`
	Completion     string `json:"completion,omitempty"`
	CheckInterval  string `json:"check_interval,omitempty"`
	IdleInterval   string `json:"idle_interval,omitempty"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	AttemptTimeout string `json:"attempt_timeout,omitempty"`
	StatusText     string `json:"status_text,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StorageConfig selects the result sink.
//
// Example:
//
//	storage: { driver: sqlite, path: ./state/results.db }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	DSN          string `json:"dsn,omitempty"` // never logged
	Table        string `json:"table,omitempty"`
	Addr         string `json:"addr,omitempty"`
	Password     string `json:"password,omitempty"` // never logged
	DB           int    `json:"db,omitempty"`
	KeyPrefix    string `json:"key_prefix,omitempty"`
	Sheet        string `json:"sheet,omitempty"`
	KeyColumn    string `json:"key_column,omitempty"`
	StatusColumn string `json:"status_column,omitempty"`
	CompactEvery int    `json:"compact_every,omitempty"`
}

// ObservabilityConfig controls the optional HTTP server (health, metrics,
// snapshot, event stream, pprof).
//
// Prefer a loopback addr. A non-loopback bind needs a token unless
// allow_insecure is set.
type ObservabilityConfig struct {
	Enabled       bool     `json:"enabled"`
	Addr          string   `json:"addr,omitempty"`   // default 127.0.0.1:6060
	Token         string   `json:"token,omitempty"`  // never logged
	Pprof         bool     `json:"pprof,omitempty"`  // mount pprof handlers
	Prefix        string   `json:"prefix,omitempty"` // pprof prefix, default /debug/pprof/
	AllowInsecure bool     `json:"allow_insecure,omitempty"`
	CORSOrigins   []string `json:"cors_origins,omitempty"`
	ReadTimeout   string   `json:"read_timeout,omitempty"`
	WriteTimeout  string   `json:"write_timeout,omitempty"`
	IdleTimeout   string   `json:"idle_timeout,omitempty"`
}

// MQConfig forwards job and run events to an AMQP topic exchange.
type MQConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"` // never logged
	Exchange string `json:"exchange,omitempty"`
}

// ScheduleConfig re-runs the batch on a cron schedule. An empty cron runs
// once and exits.
type ScheduleConfig struct {
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// RunOnStart also runs immediately instead of waiting for the first tick.
	RunOnStart bool `json:"run_on_start,omitempty"`
}
