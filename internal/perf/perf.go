// Package perf samples expansion latency.
//
// Each operation name keeps a bounded ring of recent durations for quick
// average/max queries; every observation is also exported through
// Prometheus when a registerer is supplied.
package perf

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultWindow is the number of samples kept per operation.
const DefaultWindow = 100

// Operation names recorded by the engine.
const (
	OpExpansion = "expansion"
	OpRender    = "render"
	OpSynth     = "synthesize"
	// OpForm is time spent waiting on the user; it is never reported as slow.
	OpForm = "form"
)

// Stats summarises one operation's ring.
type Stats struct {
	Count   int           `json:"count"`
	Average time.Duration `json:"average_ns"`
	Max     time.Duration `json:"max_ns"`
	Last    time.Duration `json:"last_ns"`
}

type ring struct {
	samples []time.Duration
	next    int
	full    bool
}

func (r *ring) add(d time.Duration) {
	r.samples[r.next] = d
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) values() []time.Duration {
	if r.full {
		return r.samples
	}
	return r.samples[:r.next]
}

func (r *ring) last() time.Duration {
	if !r.full && r.next == 0 {
		return 0
	}
	i := r.next - 1
	if i < 0 {
		i = len(r.samples) - 1
	}
	return r.samples[i]
}

// Options configures a Recorder.
type Options struct {
	Window int

	// SlowThreshold, when positive, logs every sample above it.
	SlowThreshold time.Duration

	// Registerer receives the Prometheus collectors; nil skips export.
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// Recorder keeps per-operation latency rings. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	window int
	rings  map[string]*ring
	slow   time.Duration
	log    *slog.Logger

	duration *prometheus.HistogramVec
	total    prometheus.Counter
	failures prometheus.Counter
}

// NewRecorder creates a recorder and registers its collectors.
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Recorder{
		window: opts.Window,
		rings:  make(map[string]*ring),
		slow:   opts.SlowThreshold,
		log:    opts.Logger.With("component", "perf"),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "expandd_expansion_duration_seconds",
			Help:    "Latency of expansion steps",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expandd_expansions_total",
			Help: "Completed expansions",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expandd_expansion_failures_total",
			Help: "Expansions abandoned because of an error",
		}),
	}
	if opts.Registerer != nil {
		for _, c := range []prometheus.Collector{r.duration, r.total, r.failures} {
			if err := opts.Registerer.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// SetSlowThreshold changes the slow-sample logging threshold; zero disables
// it.
func (r *Recorder) SetSlowThreshold(d time.Duration) {
	r.mu.Lock()
	r.slow = d
	r.mu.Unlock()
}

// Timer measures one operation.
type Timer struct {
	r     *Recorder
	op    string
	start time.Time
}

// Start begins timing op.
func (r *Recorder) Start(op string) *Timer {
	return &Timer{r: r, op: op, start: time.Now()}
}

// Stop records and returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	t.r.Observe(t.op, d)
	return d
}

// Observe records d for op.
func (r *Recorder) Observe(op string, d time.Duration) {
	r.mu.Lock()
	rg, ok := r.rings[op]
	if !ok {
		rg = &ring{samples: make([]time.Duration, r.window)}
		r.rings[op] = rg
	}
	rg.add(d)
	slow := r.slow
	r.mu.Unlock()

	r.duration.WithLabelValues(op).Observe(d.Seconds())
	if slow > 0 && d > slow && op != OpForm {
		r.log.Warn("slow operation", "operation", op, "elapsed", d, "threshold", slow)
	}
}

// Succeeded counts a completed expansion.
func (r *Recorder) Succeeded() { r.total.Inc() }

// Failed counts an abandoned expansion.
func (r *Recorder) Failed() { r.failures.Inc() }

// Average returns the mean of op's samples.
func (r *Recorder) Average(op string) time.Duration {
	return r.Stats(op).Average
}

// Max returns the largest of op's samples.
func (r *Recorder) Max(op string) time.Duration {
	return r.Stats(op).Max
}

// Count returns how many samples op holds.
func (r *Recorder) Count(op string) int {
	return r.Stats(op).Count
}

// Stats summarises op.
func (r *Recorder) Stats(op string) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	rg, ok := r.rings[op]
	if !ok {
		return Stats{}
	}
	return summarise(rg)
}

func summarise(rg *ring) Stats {
	vals := rg.values()
	s := Stats{Count: len(vals), Last: rg.last()}
	if len(vals) == 0 {
		return s
	}
	var sum time.Duration
	for _, v := range vals {
		sum += v
		if v > s.Max {
			s.Max = v
		}
	}
	s.Average = sum / time.Duration(len(vals))
	return s
}

// Snapshot summarises every operation.
func (r *Recorder) Snapshot() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.rings))
	for op, rg := range r.rings {
		out[op] = summarise(rg)
	}
	return out
}

// Operations lists recorded operation names, sorted.
func (r *Recorder) Operations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, 0, len(r.rings))
	for op := range r.rings {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Clear drops op's samples.
func (r *Recorder) Clear(op string) {
	r.mu.Lock()
	delete(r.rings, op)
	r.mu.Unlock()
}

// ClearAll drops every sample.
func (r *Recorder) ClearAll() {
	r.mu.Lock()
	clear(r.rings)
	r.mu.Unlock()
}
