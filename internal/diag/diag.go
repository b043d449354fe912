// Package diag serves read-only diagnostics over HTTP on a loopback
// address: health, Prometheus metrics, latency stats, the snippet index
// and the current application scope. Snippet text is never exposed.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expandd/internal/health"
	"expandd/internal/perf"
	"expandd/internal/plugin"
	"expandd/internal/scope"
	"expandd/internal/snippet"
)

// ErrNotLoopback is returned for listen addresses reachable from other hosts.
var ErrNotLoopback = errors.New("diag: listen address must be loopback")

// Sources are the read-only views the server exposes. Nil members disable
// their endpoint.
type Sources struct {
	Health   *health.Checker
	Gatherer prometheus.Gatherer
	Recorder *perf.Recorder
	Snippets *snippet.Repository
	Scope    *scope.Filter
	Plugins  func() []plugin.Info
}

// Server is the diagnostics HTTP server.
type Server struct {
	addr string
	srv  *http.Server
	ln   net.Listener
	log  *slog.Logger
}

// New validates addr and builds the router.
func New(addr string, src Sources, logger *slog.Logger) (*Server, error) {
	if err := checkLoopback(addr); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{addr: addr, log: logger.With("component", "diag")}
	s.srv = &http.Server{
		Handler:           Router(src, s.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("diag: listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrNotLoopback, addr)
}

// Router builds the diagnostics routes.
func Router(src Sources, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLog(logger))

	if src.Health != nil {
		r.Method(http.MethodGet, "/healthz", src.Health)
	}
	if src.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(src.Gatherer, promhttp.HandlerOpts{}))
	}
	if src.Recorder != nil {
		r.Get("/perf", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, perfView(src.Recorder))
		})
	}
	if src.Snippets != nil {
		r.Get("/snippets", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, snippetIndex(src.Snippets.All()))
		})
		r.Get("/snippets/{id}", func(w http.ResponseWriter, r *http.Request) {
			s, err := src.Snippets.Get(chi.URLParam(r, "id"))
			if err != nil {
				http.Error(w, "snippet not found", http.StatusNotFound)
				return
			}
			writeJSON(w, entryFor(s))
		})
	}
	if src.Scope != nil {
		r.Get("/scope", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, scopeView(src.Scope))
		})
	}
	if src.Plugins != nil {
		r.Get("/plugins", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, src.Plugins())
		})
	}
	return r
}

func requestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("diag request", "method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "elapsed", time.Since(start))
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type opStats struct {
	Count     int     `json:"count"`
	AverageMs float64 `json:"average_ms"`
	MaxMs     float64 `json:"max_ms"`
	LastMs    float64 `json:"last_ms"`
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

func perfView(rec *perf.Recorder) map[string]opStats {
	out := make(map[string]opStats)
	for op, s := range rec.Snapshot() {
		out[op] = opStats{Count: s.Count, AverageMs: ms(s.Average), MaxMs: ms(s.Max), LastMs: ms(s.Last)}
	}
	return out
}

type entry struct {
	ID         string    `json:"id"`
	Shortcut   string    `json:"shortcut"`
	Enabled    bool      `json:"enabled"`
	Categories []string  `json:"categories,omitempty"`
	Hotkey     string    `json:"hotkey,omitempty"`
	Form       bool      `json:"form,omitempty"`
	UseCount   int       `json:"use_count"`
	LastUsed   time.Time `json:"last_used,omitempty"`
}

func entryFor(s snippet.Snippet) entry {
	return entry{
		ID:         s.ID,
		Shortcut:   s.Shortcut,
		Enabled:    s.Enabled,
		Categories: s.Categories,
		Hotkey:     s.Hotkey,
		Form:       s.HasForm(),
		UseCount:   s.Stats.UseCount,
		LastUsed:   s.Stats.LastUsed,
	}
}

func snippetIndex(all []snippet.Snippet) []entry {
	out := make([]entry, len(all))
	for i, s := range all {
		out[i] = entryFor(s)
	}
	return out
}

type scopeResponse struct {
	Foreground *scope.Process `json:"foreground,omitempty"`
	Allowed    bool           `json:"allowed"`
	Whitelist  []string       `json:"whitelist"`
	Blacklist  []string       `json:"blacklist"`
}

func scopeView(f *scope.Filter) scopeResponse {
	rules := f.Rules()
	resp := scopeResponse{
		Allowed:   f.Allowed(),
		Whitelist: rules.Whitelist,
		Blacklist: rules.Blacklist,
	}
	if p, ok := f.Current(); ok {
		resp.Foreground = &p
	}
	return resp
}

// Start listens on the configured address and serves until Shutdown or ctx
// is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("diag: listen: %w", err)
	}
	s.ln = ln
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("diagnostics server stopped", "error", err)
		}
	}()
	s.log.Info("diagnostics listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
