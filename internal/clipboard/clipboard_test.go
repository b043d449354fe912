package clipboard

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expandd/internal/store"
)

type fakeAccessor struct {
	mu   sync.Mutex
	text string
	err  error
}

func (f *fakeAccessor) set(text string) {
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
}

func (f *fakeAccessor) ReadText() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.err
}

type historyAccessor struct {
	fakeAccessor
	items []string
}

func (h *historyAccessor) History(n int) ([]string, error) {
	if n > len(h.items) {
		n = len(h.items)
	}
	return h.items[:n], nil
}

type memHistory struct {
	saved [][]string
	load  []string
}

func (m *memHistory) SaveClipboardHistory(entries []string) error {
	m.saved = append(m.saved, append([]string(nil), entries...))
	return nil
}

func (m *memHistory) LoadClipboardHistory(limit int) ([]string, error) {
	if limit < len(m.load) {
		return m.load[:limit], nil
	}
	return m.load, nil
}

func TestMonitorDistinctHistory(t *testing.T) {
	acc := &fakeAccessor{}
	m := NewMonitor(acc, MonitorConfig{HistorySize: 3})

	for _, s := range []string{"a", "a", "b", "", "c", "a", "d"} {
		acc.set(s)
		m.Poll()
	}
	assert.Equal(t, []string{"d", "a", "c"}, m.RecentHistory(10))
	assert.Equal(t, []string{"d"}, m.RecentHistory(1))
	assert.Nil(t, m.RecentHistory(0))
	assert.Equal(t, 3, m.Len())
}

func TestMonitorCurrentText(t *testing.T) {
	acc := &fakeAccessor{text: "hello"}
	m := NewMonitor(acc, MonitorConfig{})
	v, ok := m.CurrentText()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	acc.err = errors.New("locked")
	v, ok = m.CurrentText()
	assert.False(t, ok)
	assert.Empty(t, v)

	nilAcc := NewMonitor(nil, MonitorConfig{})
	_, ok = nilAcc.CurrentText()
	assert.False(t, ok)
}

func TestMonitorPersists(t *testing.T) {
	hs := &memHistory{load: []string{"old1", "old2"}}
	acc := &fakeAccessor{}
	m := NewMonitor(acc, MonitorConfig{Store: hs})
	assert.Equal(t, []string{"old1", "old2"}, m.RecentHistory(5))

	acc.set("new")
	m.Poll()
	m.Poll()
	require.Len(t, hs.saved, 1, "unchanged polls are not saved")
	assert.Equal(t, []string{"new", "old1", "old2"}, hs.saved[0])

	require.NoError(t, m.Clear())
	assert.Zero(t, m.Len())
	assert.Empty(t, hs.saved[len(hs.saved)-1])
}

func TestMonitorPrefersNativeHistory(t *testing.T) {
	acc := &historyAccessor{items: []string{"k1", "k2", "k3"}}
	m := NewMonitor(acc, MonitorConfig{})
	assert.Equal(t, []string{"k1", "k2"}, m.RecentHistory(2))
}

func TestMonitorStartStop(t *testing.T) {
	acc := &fakeAccessor{text: "first"}
	m := NewMonitor(acc, MonitorConfig{PollInterval: 5 * time.Millisecond})
	m.Start(context.Background())
	m.Start(context.Background())

	require.Eventually(t, func() bool { return m.Len() == 1 }, time.Second, 5*time.Millisecond)
	acc.set("second")
	require.Eventually(t, func() bool { return m.Len() == 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	acc.set("third")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"second", "first"}, m.RecentHistory(5))
}

func TestMonitorWithSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expandd.db")
	st, err := store.Open(path, store.Options{})
	require.NoError(t, err)

	acc := &fakeAccessor{}
	m := NewMonitor(acc, MonitorConfig{Store: st})
	for _, s := range []string{"x", "y"} {
		acc.set(s)
		m.Poll()
	}
	require.NoError(t, st.Close())

	st, err = store.Open(path, store.Options{})
	require.NoError(t, err)
	defer st.Close()
	reloaded := NewMonitor(nil, MonitorConfig{Store: st})
	assert.Equal(t, []string{"y", "x"}, reloaded.RecentHistory(5))
}

func TestNewUnknownSource(t *testing.T) {
	_, err := New("pasteboard")
	assert.Error(t, err)

	acc, err := New("system")
	require.NoError(t, err)
	assert.IsType(t, System{}, acc)
}
