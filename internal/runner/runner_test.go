package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecSuccessReadsStdinAndEnv(t *testing.T) {
	requireShell(t)
	script := `read -r line; case "$line" in *'"key":"a@x.com"'*) ;; *) exit 3;; esac; [ "$ENVPOOL_ENDPOINT" = "127.0.0.1:9222" ] || exit 4; echo ok`
	r, err := NewExec(ExecConfig{Command: "sh", Args: []string{"-c", script}}, logx.Nop())
	require.NoError(t, err)

	err = r.Run(context.Background(), "127.0.0.1:9222", job.Job{Key: "a@x.com", Row: 3, Attempt: 1})
	assert.NoError(t, err)
}

func TestExecFailureCarriesStderrTail(t *testing.T) {
	requireShell(t)
	r, err := NewExec(ExecConfig{Command: "sh", Args: []string{"-c", "echo captcha timeout >&2; exit 2"}, StderrTail: 64}, logx.Nop())
	require.NoError(t, err)

	err = r.Run(context.Background(), "ep", job.Job{Key: "k"})
	require.Error(t, err)
	assert.Equal(t, "exit 2: captcha timeout", err.Error())
}

func TestExecCanceled(t *testing.T) {
	requireShell(t)
	r, err := NewExec(ExecConfig{Command: "sh", Args: []string{"-c", "sleep 5"}}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Run(ctx, "ep", job.Job{Key: "k"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecRequiresCommand(t *testing.T) {
	_, err := NewExec(ExecConfig{}, logx.Nop())
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 5}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "cdefg", tb.String())
}

func TestDevTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"HeadlessChrome/126.0","webSocketDebuggerUrl":"ws://x"}`))
	}))
	defer srv.Close()

	d := NewDevTools(0, logx.Nop())
	endpoint := strings.TrimPrefix(srv.URL, "http://")
	assert.NoError(t, d.Run(context.Background(), endpoint, job.Job{Key: "k"}))
	assert.NoError(t, d.Run(context.Background(), srv.URL, job.Job{Key: "k"}))
}

func TestDevToolsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := NewDevTools(0, logx.Nop()).Run(context.Background(), srv.URL, job.Job{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
