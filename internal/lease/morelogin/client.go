// Package morelogin is a lease.Client for the MoreLogin local API.
package morelogin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"envpool/internal/lease"
)

type Config struct {
	BaseURL string
	APIID   string
	APIKey  string
	// OperatorSystem is windows (or window) or mac (or macos).
	OperatorSystem string
	// DebugHost is the host part of the returned endpoint.
	DebugHost string
	Timeout   time.Duration
}

type Client struct {
	base   string
	apiID  string
	apiKey string
	osID   int
	host   string
	http   *http.Client
}

// New validates cfg. hc may be nil.
func New(cfg Config, hc *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: morelogin base_url is required", lease.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.APIID) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: morelogin api_id and api_key are required", lease.ErrInvalidConfig)
	}
	osID, err := OperatorSystemID(cfg.OperatorSystem)
	if err != nil {
		return nil, err
	}
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = lease.DefaultCallTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	host := strings.TrimSpace(cfg.DebugHost)
	if host == "" {
		host = "127.0.0.1"
	}
	return &Client{base: base, apiID: cfg.APIID, apiKey: cfg.APIKey, osID: osID, host: host, http: hc}, nil
}

// OperatorSystemID maps the configured OS name to the provider's id.
// Empty means mac.
func OperatorSystemID(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "windows", "window":
		return 1, nil
	case "", "mac", "macos":
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: unsupported operator_system %q (use windows or mac)", lease.ErrInvalidConfig, name)
	}
}

type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) post(ctx context.Context, op, path string, body any) (json.RawMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &lease.RemoteServiceError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, &lease.RemoteServiceError{Op: op, Err: err}
	}
	req.Header.Set("api-id", c.apiID)
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &lease.RemoteServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &lease.RemoteServiceError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &lease.RemoteServiceError{Op: op, Code: resp.StatusCode, Message: httpMessage(resp.Status, b)}
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, &lease.RemoteServiceError{Op: op, Code: resp.StatusCode, Message: "invalid response", Err: err}
	}
	if env.Code == nil {
		return nil, &lease.RemoteServiceError{Op: op, Code: resp.StatusCode, Message: "missing code"}
	}
	if *env.Code != 0 {
		return nil, &lease.RemoteServiceError{Op: op, Code: *env.Code, Message: env.Msg}
	}
	return env.Data, nil
}

func httpMessage(status string, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return status
	}
	return status + ": " + msg
}

func (c *Client) Create(ctx context.Context) (string, error) {
	data, err := c.post(ctx, lease.OpCreate, "/api/env/create/quick", map[string]int{
		"browserTypeId":    1,
		"operatorSystemId": c.osID,
		"quantity":         1,
	})
	if err != nil {
		return "", err
	}
	var ids []json.RawMessage
	if err := json.Unmarshal(data, &ids); err != nil || len(ids) == 0 {
		return "", &lease.RemoteServiceError{Op: lease.OpCreate, Err: lease.ErrNoEnvironment}
	}
	id := rawID(ids[0])
	if id == "" {
		return "", &lease.RemoteServiceError{Op: lease.OpCreate, Err: lease.ErrNoEnvironment}
	}
	return id, nil
}

// rawID accepts both string and numeric ids.
func rawID(r json.RawMessage) string {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(r, &n); err == nil {
		return n.String()
	}
	return ""
}

func (c *Client) Start(ctx context.Context, envID string) (string, error) {
	data, err := c.post(ctx, lease.OpStart, "/api/env/start", map[string]string{"envId": envID})
	if err != nil {
		return "", err
	}
	var out struct {
		DebugPort json.Number `json:"debugPort"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.DebugPort == "" {
		return "", &lease.RemoteServiceError{Op: lease.OpStart, Message: "missing debugPort", Err: err}
	}
	if _, err := strconv.Atoi(out.DebugPort.String()); err != nil {
		return "", &lease.RemoteServiceError{Op: lease.OpStart, Message: "invalid debugPort", Err: err}
	}
	return net.JoinHostPort(c.host, out.DebugPort.String()), nil
}

func (c *Client) Close(ctx context.Context, envID string) error {
	_, err := c.post(ctx, lease.OpClose, "/api/env/close", map[string]string{"envId": envID})
	return err
}

// Delete moves the environment to the recycle bin, keeping its data.
func (c *Client) Delete(ctx context.Context, envID string) error {
	_, err := c.post(ctx, lease.OpDelete, "/api/env/removeToRecycleBin/batch", map[string]any{
		"envIds":        []string{envID},
		"removeEnvData": false,
	})
	return err
}
