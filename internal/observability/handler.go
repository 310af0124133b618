package observability

import (
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"envpool/internal/eventbus"
	"envpool/pkg/logx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Deps are the read-only views the server exposes. Nil members disable
// their endpoint.
type Deps struct {
	// Snapshot returns a JSON-encodable view of the pool.
	Snapshot func() any
	// Health reports a non-nil error when the process is unhealthy.
	Health   func() error
	Gatherer prometheus.Gatherer
	Bus      eventbus.Bus
}

// Handler builds the HTTP surface:
//
//	GET /healthz          liveness, 503 when Health fails
//	GET /metrics          prometheus exposition
//	GET /snapshot         pool snapshot as JSON
//	GET /events           websocket stream of bus events (?type=job.&type=run.)
//	    <prefix>          pprof, when enabled
//
// Every route except /healthz requires the token when one is configured.
func Handler(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	mux := http.NewServeMux()
	auth := func(h http.Handler) http.Handler { return withAuth(cfg.Token, h) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", auth(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if deps.Snapshot != nil {
		mux.Handle("GET /snapshot", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(deps.Snapshot()); err != nil {
				log.Warn("snapshot encode failed", logx.Err(err))
			}
		})))
	}

	if deps.Bus != nil {
		mux.Handle("GET /events", auth(&eventStream{bus: deps.Bus, log: log, origins: cfg.CORSOrigins}))
	}

	if cfg.Pprof {
		prefix := normalizePrefix(cfg.Prefix)
		base := strings.TrimSuffix(prefix, "/")
		mux.Handle(prefix, auth(pprofIndexAt(prefix)))
		mux.Handle(base+"/cmdline", auth(http.HandlerFunc(hpprof.Cmdline)))
		mux.Handle(base+"/profile", auth(http.HandlerFunc(hpprof.Profile)))
		mux.Handle(base+"/symbol", auth(http.HandlerFunc(hpprof.Symbol)))
		mux.Handle(base+"/trace", auth(http.HandlerFunc(hpprof.Trace)))
	}

	if len(cfg.CORSOrigins) == 0 {
		return mux
	}
	return cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization"},
	}).Handler(mux)
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
// Browsers cannot set headers on websocket upgrades, hence the query form.
func withAuth(token string, h http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprof.Index only resolves profiles under /debug/pprof/, so the path is
// rewritten for custom prefixes.
func pprofIndexAt(prefix string) http.Handler {
	canon := normalizePrefix(prefix)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, canon)
		hpprof.Index(w, r2)
	})
}
