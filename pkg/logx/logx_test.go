package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	require.True(t, l.IsZero())
	l.Info("nothing", String("k", "v"))
	assert.False(t, l.With(Comp("x")).IsZero())
}

func TestWithFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(Comp("pool"))
	l.Warn("lease release failed", String("env", "e-1"), Int("attempt", 2))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "pool", m["comp"])
	assert.Equal(t, "e-1", m["env"])
	assert.Equal(t, float64(2), m["attempt"])
	assert.Equal(t, "warn", m["level"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, l.Enabled(LevelDebug))
	assert.True(t, l.Enabled(LevelError))
}

func TestFormatRemote(t *testing.T) {
	line := []byte(`{"level":"warn","message":"lease release failed","time":"t","env":"e-1","comp":"pool"}`)
	got := formatRemote(line)
	assert.True(t, strings.HasPrefix(got, "[WARN] lease release failed"))
	assert.Contains(t, got, "\n- comp=pool\n- env=e-1")
	assert.NotContains(t, got, "time=")

	assert.Equal(t, "not json", formatRemote([]byte(" not json \n")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
