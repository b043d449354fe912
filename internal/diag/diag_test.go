package diag

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expandd/internal/health"
	"expandd/internal/perf"
	"expandd/internal/plugin"
	"expandd/internal/scope"
	"expandd/internal/snippet"
)

func sources(t *testing.T) Sources {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec, err := perf.NewRecorder(perf.Options{Registerer: reg})
	require.NoError(t, err)
	rec.Observe(perf.OpExpansion, 4*time.Millisecond)
	rec.Succeeded()

	repo := snippet.NewRepository(snippet.NewMemoryPersister(), nil)
	_, err = repo.Add(snippet.Snippet{ID: "pw", Shortcut: "pw", Text: "hunter2", Enabled: true, Sensitive: true})
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.RegisterFunc("engine", true, health.Running(func() bool { return true }))
	checker.SetReady(true)
	filter := scope.NewFilter(scope.Static{PID: 42, Name: "code"}, nil)
	filter.SetRules(scope.Rules{Blacklist: []string{"keepass"}})

	return Sources{
		Health:   checker,
		Gatherer: reg,
		Recorder: rec,
		Snippets: repo,
		Scope:    filter,
		Plugins:  func() []plugin.Info { return []plugin.Info{{Name: "weather", Variables: []string{"weather"}}} },
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	h := Router(sources(t), nil)

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "expandd_expansions_total 1")
	assert.Contains(t, rec.Body.String(), `expandd_expansion_duration_seconds_count{operation="expansion"} 1`)

	rec = get(t, h, "/perf")
	var stats map[string]opStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats["expansion"].Count)
	assert.InDelta(t, 4.0, stats["expansion"].AverageMs, 0.001)

	rec = get(t, h, "/scope")
	var sc scopeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sc))
	assert.True(t, sc.Allowed)
	require.NotNil(t, sc.Foreground)
	assert.Equal(t, "code", sc.Foreground.Name)
	assert.Equal(t, []string{"keepass"}, sc.Blacklist)

	rec = get(t, h, "/plugins")
	assert.Contains(t, rec.Body.String(), "weather")
}

func TestSnippetTextNeverServed(t *testing.T) {
	h := Router(sources(t), nil)

	rec := get(t, h, "/snippets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	var idx []entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &idx))
	require.Len(t, idx, 1)
	assert.Equal(t, "pw", idx[0].Shortcut)

	rec = get(t, h, "/snippets/pw")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/snippets/nope").Code)
}

func TestDisabledEndpoints(t *testing.T) {
	h := Router(Sources{}, nil)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/snippets").Code)
}

func TestLoopbackOnly(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:0", "localhost:7878", "[::1]:9000"} {
		_, err := New(addr, Sources{}, nil)
		assert.NoError(t, err, addr)
	}
	for _, addr := range []string{"0.0.0.0:7878", ":7878", "192.168.1.4:80"} {
		_, err := New(addr, Sources{}, nil)
		assert.ErrorIs(t, err, ErrNotLoopback, addr)
	}
	_, err := New("no-port", Sources{}, nil)
	assert.Error(t, err)
}

func TestServerLifecycle(t *testing.T) {
	s, err := New("127.0.0.1:0", sources(t), nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"status":"healthy"`))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
