package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendText(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		_ = json.Unmarshal(raw, &body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`)
	}))
	defer srv.Close()

	c, err := New(Config{Token: "123:abc", ChatID: -100, ThreadID: 9, URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, c.SendText(context.Background(), "Run finished"))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasSuffix(path, "/bot123:abc/sendMessage"), path)
	assert.Equal(t, "Run finished", body["text"])
	assert.EqualValues(t, "-100", body["chat_id"])
}

func TestSendTextSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	c, err := New(Config{Token: "123:abc", ChatID: 1, URL: srv.URL})
	require.NoError(t, err)
	err = c.SendText(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSendTextHonorsCanceledContext(t *testing.T) {
	c, err := New(Config{Token: "123:abc", ChatID: 1, URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.SendText(ctx, "x"), context.Canceled)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{ChatID: 1})
	assert.Error(t, err)
	_, err = New(Config{Token: "t"})
	assert.Error(t, err)
}
