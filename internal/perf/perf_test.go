package perf

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderStats(t *testing.T) {
	r, err := NewRecorder(Options{})
	require.NoError(t, err)

	assert.Zero(t, r.Average("none"))
	assert.Zero(t, r.Count("none"))

	for _, ms := range []int{10, 20, 30} {
		r.Observe(OpExpansion, time.Duration(ms)*time.Millisecond)
	}
	assert.Equal(t, 3, r.Count(OpExpansion))
	assert.Equal(t, 20*time.Millisecond, r.Average(OpExpansion))
	assert.Equal(t, 30*time.Millisecond, r.Max(OpExpansion))
	assert.Equal(t, 30*time.Millisecond, r.Stats(OpExpansion).Last)
}

func TestRecorderRingEvictsOldest(t *testing.T) {
	r, err := NewRecorder(Options{Window: 3})
	require.NoError(t, err)
	for _, ms := range []int{100, 1, 2, 3} {
		r.Observe("op", time.Duration(ms)*time.Millisecond)
	}
	s := r.Stats("op")
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 3*time.Millisecond, s.Max, "the 100ms sample was evicted")
	assert.Equal(t, 2*time.Millisecond, s.Average)
	assert.Equal(t, 3*time.Millisecond, s.Last)

	r.Observe("op", 7*time.Millisecond)
	assert.Equal(t, 7*time.Millisecond, r.Stats("op").Last)
}

func TestRecorderDefaultWindow(t *testing.T) {
	r, err := NewRecorder(Options{})
	require.NoError(t, err)
	for i := 0; i < 250; i++ {
		r.Observe("op", time.Millisecond)
	}
	assert.Equal(t, DefaultWindow, r.Count("op"))
}

func TestTimerAndClear(t *testing.T) {
	r, err := NewRecorder(Options{})
	require.NoError(t, err)

	tm := r.Start(OpRender)
	time.Sleep(2 * time.Millisecond)
	d := tm.Stop()
	assert.GreaterOrEqual(t, d, 2*time.Millisecond)
	assert.Equal(t, 1, r.Count(OpRender))

	r.Observe(OpSynth, time.Millisecond)
	assert.Equal(t, []string{OpRender, OpSynth}, r.Operations())
	assert.Len(t, r.Snapshot(), 2)

	r.Clear(OpRender)
	assert.Zero(t, r.Count(OpRender))
	r.ClearAll()
	assert.Empty(t, r.Snapshot())
}

func TestPrometheusExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(Options{Registerer: reg})
	require.NoError(t, err)

	r.Observe(OpExpansion, 5*time.Millisecond)
	r.Succeeded()
	r.Succeeded()
	r.Failed()
	assert.Equal(t, float64(2), testutil.ToFloat64(r.total))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.failures))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))

	_, err = NewRecorder(Options{Registerer: reg})
	assert.Error(t, err, "collectors can only be registered once")
}

func TestSlowLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r, err := NewRecorder(Options{SlowThreshold: 10 * time.Millisecond, Logger: logger})
	require.NoError(t, err)

	r.Observe(OpExpansion, 5*time.Millisecond)
	assert.Empty(t, buf.String())
	r.Observe(OpExpansion, 50*time.Millisecond)
	assert.Contains(t, buf.String(), "slow operation")

	buf.Reset()
	r.Observe(OpForm, time.Minute)
	assert.Empty(t, buf.String(), "waiting on a form is not slow")
	assert.Equal(t, 1, r.Count(OpForm))

	r.SetSlowThreshold(0)
	r.Observe(OpExpansion, time.Second)
	assert.Empty(t, buf.String())
}
