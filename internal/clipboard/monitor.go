package clipboard

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults for Monitor.
const (
	DefaultHistorySize  = 50
	DefaultPollInterval = 500 * time.Millisecond
)

// HistoryStore persists the history between runs.
type HistoryStore interface {
	SaveClipboardHistory(entries []string) error
	LoadClipboardHistory(limit int) ([]string, error)
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	HistorySize  int
	PollInterval time.Duration
	Store        HistoryStore
	Logger       *slog.Logger
}

// Monitor polls an Accessor and records every distinct text it sees, most
// recent first. Reading a value that is already in the history moves it to
// the front.
type Monitor struct {
	mu       sync.RWMutex
	accessor Accessor
	history  []string
	size     int
	interval time.Duration
	store    HistoryStore
	log      *slog.Logger

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor and loads any persisted history.
func NewMonitor(accessor Accessor, cfg MonitorConfig) *Monitor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Monitor{
		accessor: accessor,
		size:     cfg.HistorySize,
		interval: cfg.PollInterval,
		store:    cfg.Store,
		log:      cfg.Logger.With("component", "clipboard"),
	}
	if m.store != nil {
		entries, err := m.store.LoadClipboardHistory(m.size)
		if err != nil {
			m.log.Warn("loading clipboard history failed", "error", err)
		}
		m.history = entries
	}
	return m
}

// Start polls until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop ends polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	done := m.done
	m.mu.Unlock()
	<-done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll reads the clipboard once and records the text when it is new.
func (m *Monitor) Poll() {
	if m.accessor == nil {
		return
	}
	text, err := m.accessor.ReadText()
	if err != nil || text == "" {
		return
	}
	if m.push(text) && m.store != nil {
		if err := m.store.SaveClipboardHistory(m.snapshot(m.size)); err != nil {
			m.log.Warn("saving clipboard history failed", "error", err)
		}
	}
}

// push records text at the front. It reports whether the history changed.
func (m *Monitor) push(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) > 0 && m.history[0] == text {
		return false
	}
	for i, h := range m.history {
		if h == text {
			m.history = append(m.history[:i], m.history[i+1:]...)
			break
		}
	}
	m.history = append([]string{text}, m.history...)
	if len(m.history) > m.size {
		m.history = m.history[:m.size]
	}
	return true
}

func (m *Monitor) snapshot(n int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.history) {
		n = len(m.history)
	}
	return append([]string(nil), m.history[:n]...)
}

// CurrentText reads the clipboard directly. Failures report false.
func (m *Monitor) CurrentText() (string, bool) {
	if m.accessor == nil {
		return "", false
	}
	text, err := m.accessor.ReadText()
	if err != nil {
		m.log.Debug("clipboard read failed", "error", err)
		return "", false
	}
	return text, true
}

// RecentHistory returns up to n distinct entries, most recent first. When
// the accessor keeps its own history that is preferred.
func (m *Monitor) RecentHistory(n int) []string {
	if n <= 0 {
		return nil
	}
	if hs, ok := m.accessor.(HistorySource); ok {
		if items, err := hs.History(n); err == nil {
			return items
		}
	}
	return m.snapshot(n)
}

// Len returns the number of recorded entries.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// Clear forgets the history, including the persisted copy.
func (m *Monitor) Clear() error {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()
	if m.store != nil {
		return m.store.SaveClipboardHistory(nil)
	}
	return nil
}
