package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
source:
  path: ./accounts.xlsx
lease:
  driver: morelogin
  release_pause: 1s
  morelogin:
    base_url: http://127.0.0.1:40000
    api_id: "${ENVPOOL_TEST_API_ID}"
    api_key: secret
runner:
  driver: exec
  exec:
    command: ./bot
pool:
  workers: 3
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	t.Setenv("ENVPOOL_TEST_API_ID", "id-42")
	m := NewManager(writeFile(t, "envpool.yaml", validYAML))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "id-42", cfg.Lease.MoreLogin.APIID)
	assert.Equal(t, 3, cfg.Pool.Workers)
	assert.Same(t, cfg, m.Get())
}

func TestExpandEnvLeavesBareDollar(t *testing.T) {
	t.Setenv("X_ONE", "1")
	out := expandEnv([]byte(`a: ${X_ONE} b: pa$$word c: $X_ONE`))
	assert.Equal(t, `a: 1 b: pa$$word c: $X_ONE`, string(out))
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"pool":{"workers":1,"bogus":true}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"pool":{"workers":1}} {}`))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestValidateRequiredSettings(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	for _, want := range []string{
		"source.path",
		"pool.workers",
		"lease.morelogin.base_url",
		"lease.morelogin.api_id",
		"lease.morelogin.api_key",
		"runner.exec.command",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidateBadValues(t *testing.T) {
	t.Setenv("ENVPOOL_TEST_API_ID", "id")
	base, err := Decode("c.yaml", []byte(validYAML))
	require.NoError(t, err)
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"pool.completion":       func(c *Config) { c.Pool.Completion = "eventually" },
		"pool.check_interval":   func(c *Config) { c.Pool.CheckInterval = "soon" },
		"lease.release_pause":   func(c *Config) { c.Lease.ReleasePause = "-1s" },
		"lease.driver":          func(c *Config) { c.Lease.Driver = "vagrant" },
		"operator_system":       func(c *Config) { c.Lease.MoreLogin.OperatorSystem = "linux" },
		"storage.dsn":           func(c *Config) { c.Storage.Driver = "postgres" },
		"schedule.cron":         func(c *Config) { c.Schedule.Cron = "every day" },
		"telegram.token":        func(c *Config) { c.Telegram.NotifyRuns = true },
		"mq.url":                func(c *Config) { c.MQ.Enabled = true },
		"not an absolute URL":   func(c *Config) { c.Lease.MoreLogin.BaseURL = "localhost" },
		"runner.driver":         func(c *Config) { c.Runner.Driver = "ssh" },
		"schedule.timezone":     func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
		"lease.rate_per_sec":    func(c *Config) { c.Lease.RatePerSec = -1 },
		"pool.max_attempts":     func(c *Config) { c.Pool.MaxAttempts = -2 },
		"storage.addr":          func(c *Config) { c.Storage.Driver = "redis" },
		"unknown storage.drive": func(c *Config) { c.Storage.Driver = "mongo" },
	}
	for want, mutate := range cases {
		t.Run(want, func(t *testing.T) {
			c := *base
			mutate(&c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, want)
		})
	}
}

func TestDockerLeaseNeedsNoCredentials(t *testing.T) {
	cfg := &Config{
		Source: SourceConfig{Path: "a.csv"},
		Lease:  LeaseConfig{Driver: "docker"},
		Runner: RunnerConfig{Driver: "devtools"},
		Pool:   PoolConfig{Workers: 1},
	}
	assert.NoError(t, cfg.Validate())
}

func TestDurationOr(t *testing.T) {
	assert.Equal(t, time.Second, DurationOr("", time.Second))
	assert.Equal(t, 2*time.Second, DurationOr("2s", time.Second))
	assert.Equal(t, time.Second, DurationOr("nope", time.Second))
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{Logging: LoggingConfig{Level: "debug"}}

	changed, attrs, restart := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"logging"}, changed)
	assert.NotEmpty(t, attrs)
	assert.False(t, restart)

	newCfg.Pool.Workers = 8
	newCfg.Lease.MoreLogin.APIKey = "k"
	changed, _, restart = SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"lease", "logging", "pool"}, changed)
	assert.True(t, restart)
}

func TestWatchPublishesValidChange(t *testing.T) {
	t.Setenv("ENVPOOL_TEST_API_ID", "id")
	path := writeFile(t, "envpool.yaml", validYAML)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(validYAML+"logging:\n  level: debug\n"), 0o600))

	select {
	case cfg := <-ch:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}

	cancel()
	<-done
}

func TestWatchSkipsInvalidChange(t *testing.T) {
	t.Setenv("ENVPOOL_TEST_API_ID", "id")
	path := writeFile(t, "envpool.yaml", validYAML)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)

	m.reload(context.Background()) // unchanged content
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  workers: 0\n"), 0o600))
	m.reload(context.Background())

	assert.Empty(t, ch)
	assert.Equal(t, 3, m.Get().Pool.Workers)
}
