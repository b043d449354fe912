package scope

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often a Poller refreshes its cached process.
const DefaultPollInterval = 250 * time.Millisecond

type probeResult struct {
	proc Process
	err  error
}

// Poller runs a slow probe in the background and serves the last result
// from memory, so Foreground never blocks the caller.
type Poller struct {
	probe    func(context.Context) (Process, error)
	interval time.Duration
	last     atomic.Pointer[probeResult]

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller wraps probe. interval <= 0 uses DefaultPollInterval.
func NewPoller(probe func(context.Context) (Process, error), interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{probe: probe, interval: interval}
	p.last.Store(&probeResult{err: ErrNoForeground})
	return p
}

// Foreground returns the cached result of the most recent probe.
func (p *Poller) Foreground() (Process, error) {
	r := p.last.Load()
	return r.proc, r.err
}

// Refresh probes once, synchronously.
func (p *Poller) Refresh(ctx context.Context) {
	proc, err := p.probe(ctx)
	p.last.Store(&probeResult{proc: proc, err: err})
}

// Start probes every interval until ctx ends or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running = true

	go func() {
		defer close(p.done)
		t := time.NewTicker(p.interval)
		defer t.Stop()
		p.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.Refresh(ctx)
			}
		}
	}()
}

// Stop ends polling.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	done := p.done
	p.mu.Unlock()
	<-done
}
