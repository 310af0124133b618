package observability

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"envpool/internal/eventbus"
	"envpool/pkg/logx"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 128
)

// eventStream upgrades to a websocket and forwards bus events as JSON until
// the client goes away. Slow clients lose events; the bus never blocks.
type eventStream struct {
	bus     eventbus.Bus
	log     logx.Logger
	origins []string
}

func (s *eventStream) upgrader() *websocket.Upgrader {
	u := &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096}
	if len(s.origins) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin) {
				return true
			}
			o, err := url.Parse(origin)
			return err == nil && strings.EqualFold(o.Host, r.Host)
		}
	}
	return u
}

func (s *eventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug("event stream upgrade failed", logx.Err(err))
		return
	}
	defer func() { _ = conn.Close() }()

	events, unsubscribe := s.bus.Subscribe(wsBuffer, r.URL.Query()["type"]...)
	defer unsubscribe()

	s.log.Debug("event stream client connected", logx.String("remote", r.RemoteAddr))

	// The read side only exists to notice close frames and answer pings.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
