package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

// DevTools only checks that the leased browser answers on its DevTools
// endpoint. It is a smoke test for lease providers.
type DevTools struct {
	http *http.Client
	log  logx.Logger
}

func NewDevTools(timeout time.Duration, log logx.Logger) *DevTools {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DevTools{http: &http.Client{Timeout: timeout}, log: log.With(logx.Comp("runner.devtools"))}
}

type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func (d *DevTools) Run(ctx context.Context, endpoint string, j job.Job) error {
	url := endpoint
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/json/version", nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("devtools: status %d", resp.StatusCode)
	}
	var v versionInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&v); err != nil {
		return fmt.Errorf("devtools: decode version: %w", err)
	}
	if v.Browser == "" {
		return fmt.Errorf("devtools: empty browser version")
	}
	d.log.Info("browser reachable", logx.String("key", j.Key), logx.String("browser", v.Browser))
	return nil
}
