package morelogin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envpool/internal/lease"
)

type recorded struct {
	path string
	body map[string]any
}

func newServer(t *testing.T, reply func(path string) string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id-1", r.Header.Get("api-id"))
		assert.Equal(t, "key-1", r.Header.Get("api-key"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, recorded{path: r.URL.Path, body: body})
		_, _ = w.Write([]byte(reply(r.URL.Path)))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newClient(t *testing.T, base, os string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: base + "/", APIID: "id-1", APIKey: "key-1", OperatorSystem: os}, nil)
	require.NoError(t, err)
	return c
}

func TestLifecycle(t *testing.T) {
	srv, calls := newServer(t, func(path string) string {
		switch path {
		case "/api/env/create/quick":
			return `{"code":0,"data":["1698765"]}`
		case "/api/env/start":
			return `{"code":0,"data":{"debugPort":"9222"}}`
		default:
			return `{"code":0,"data":true}`
		}
	})
	c := newClient(t, srv.URL, "windows")
	ctx := context.Background()

	id, err := c.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1698765", id)

	ep, err := c.Start(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9222", ep)

	require.NoError(t, c.Close(ctx, id))
	require.NoError(t, c.Delete(ctx, id))

	require.Len(t, *calls, 4)
	assert.Equal(t, map[string]any{"browserTypeId": float64(1), "operatorSystemId": float64(1), "quantity": float64(1)}, (*calls)[0].body)
	assert.Equal(t, map[string]any{"envId": "1698765"}, (*calls)[1].body)
	assert.Equal(t, "/api/env/removeToRecycleBin/batch", (*calls)[3].path)
	assert.Equal(t, []any{"1698765"}, (*calls)[3].body["envIds"])
	assert.Equal(t, false, (*calls)[3].body["removeEnvData"])
}

func TestNumericIDAndPort(t *testing.T) {
	srv, _ := newServer(t, func(path string) string {
		if path == "/api/env/start" {
			return `{"code":0,"data":{"debugPort":53011}}`
		}
		return `{"code":0,"data":[1698765]}`
	})
	c := newClient(t, srv.URL, "mac")
	id, err := c.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1698765", id)
	ep, err := c.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:53011", ep)
}

func TestNonZeroCodeIsRemoteServiceError(t *testing.T) {
	srv, _ := newServer(t, func(string) string { return `{"code":10001,"msg":"quota exhausted"}` })
	c := newClient(t, srv.URL, "")

	_, err := c.Create(context.Background())
	var rse *lease.RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, lease.OpCreate, rse.Op)
	assert.Equal(t, 10001, rse.Code)
	assert.Equal(t, "quota exhausted", rse.Message)
}

func TestHTTPErrorStatusIsRemoteServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal"}`))
	}))
	t.Cleanup(srv.Close)
	c := newClient(t, srv.URL, "")

	err := c.Close(context.Background(), "x")
	var rse *lease.RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, lease.OpClose, rse.Op)
	assert.Equal(t, http.StatusInternalServerError, rse.Code)
	assert.Contains(t, rse.Message, "internal")
}

func TestMissingCodeIsRemoteServiceError(t *testing.T) {
	srv, _ := newServer(t, func(string) string { return `{"error":"internal"}` })
	c := newClient(t, srv.URL, "")

	err := c.Delete(context.Background(), "x")
	var rse *lease.RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, lease.OpDelete, rse.Op)
	assert.Equal(t, http.StatusOK, rse.Code)
	assert.Equal(t, "missing code", rse.Message)
}

func TestEmptyCreateData(t *testing.T) {
	srv, _ := newServer(t, func(string) string { return `{"code":0,"data":[]}` })
	c := newClient(t, srv.URL, "")
	_, err := c.Create(context.Background())
	assert.ErrorIs(t, err, lease.ErrNoEnvironment)
}

func TestTransportFailure(t *testing.T) {
	srv, _ := newServer(t, func(string) string { return "" })
	c := newClient(t, srv.URL, "")
	srv.Close()
	err := c.Close(context.Background(), "x")
	var rse *lease.RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, lease.OpClose, rse.Op)
	assert.Error(t, rse.Err)
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{APIID: "a", APIKey: "b"}, nil)
	assert.ErrorIs(t, err, lease.ErrInvalidConfig)

	_, err = New(Config{BaseURL: "http://x", APIKey: "b"}, nil)
	assert.ErrorIs(t, err, lease.ErrInvalidConfig)

	_, err = New(Config{BaseURL: "http://x", APIID: "a", APIKey: "b", OperatorSystem: "linux"}, nil)
	assert.ErrorIs(t, err, lease.ErrInvalidConfig)

	id, err := OperatorSystemID("MacOS")
	require.NoError(t, err)
	assert.Equal(t, 2, id)
}
