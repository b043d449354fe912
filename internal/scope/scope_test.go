package scope

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expandd/internal/snippet"
)

var notepad = Process{PID: 42, Name: "notepad", ExePath: `C:\Windows\System32\notepad.exe`}

func TestDecide(t *testing.T) {
	tests := []struct {
		name         string
		allow, block []string
		want         bool
	}{
		{"no lists", nil, nil, true},
		{"blank entries ignored", []string{" "}, []string{""}, true},
		{"blacklisted by name", nil, []string{"NOTE"}, false},
		{"blacklisted by path", nil, []string{"system32"}, false},
		{"blacklist beats whitelist", []string{"notepad"}, []string{"notepad"}, false},
		{"whitelisted", []string{"word", "notepad"}, nil, true},
		{"not on whitelist", []string{"word"}, nil, false},
		{"unrelated blacklist", nil, []string{"keepass"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.allow, tt.block, notepad))
		})
	}
}

func TestFilterAllowed(t *testing.T) {
	f := NewFilter(Static(notepad), nil)
	assert.True(t, f.Allowed())

	f.SetRules(Rules{Blacklist: []string{"notepad"}, Whitelist: []string{"notepad"}})
	assert.False(t, f.Allowed())

	f.SetRules(Rules{Whitelist: []string{"code"}})
	assert.False(t, f.Allowed())
	assert.Equal(t, []string{"code"}, f.Rules().Whitelist)
}

func TestFilterFailsOpen(t *testing.T) {
	failing := ResolverFunc(func() (Process, error) { return Process{}, errors.New("gone") })
	f := NewFilter(failing, nil)
	f.SetRules(Rules{Blacklist: []string{"notepad"}})
	assert.True(t, f.Allowed())
	_, ok := f.Current()
	assert.False(t, ok)

	s := snippet.Snippet{AllowedApps: []string{"word"}}
	assert.True(t, f.SnippetAllowed(&s))

	nilResolver := NewFilter(nil, nil)
	nilResolver.SetRules(Rules{Whitelist: []string{"word"}})
	assert.True(t, nilResolver.Allowed())
}

func TestFilterSkipsLookupWithoutRules(t *testing.T) {
	var calls atomic.Int32
	r := ResolverFunc(func() (Process, error) {
		calls.Add(1)
		return notepad, nil
	})
	f := NewFilter(r, nil)
	assert.True(t, f.Allowed())
	assert.True(t, f.SnippetAllowed(&snippet.Snippet{}))
	assert.Zero(t, calls.Load())
}

func TestSnippetAllowed(t *testing.T) {
	f := NewFilter(Static(notepad), nil)
	assert.True(t, f.SnippetAllowed(nil))
	assert.False(t, f.SnippetAllowed(&snippet.Snippet{BlockedApps: []string{"notepad"}}))
	assert.True(t, f.SnippetAllowed(&snippet.Snippet{AllowedApps: []string{"NotePad"}}))
	assert.False(t, f.SnippetAllowed(&snippet.Snippet{AllowedApps: []string{"excel"}}))
}

func TestPoller(t *testing.T) {
	var n atomic.Int32
	p := NewPoller(func(context.Context) (Process, error) {
		n.Add(1)
		return Process{PID: int(n.Load()), Name: "term"}, nil
	}, 5*time.Millisecond)

	_, err := p.Foreground()
	assert.ErrorIs(t, err, ErrNoForeground, "nothing cached before the first probe")

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		proc, err := p.Foreground()
		return err == nil && proc.PID >= 2
	}, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	stopped := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())
}

func TestProcessName(t *testing.T) {
	assert.Equal(t, "firefox", processName("/usr/lib/firefox/firefox"))
	assert.Equal(t, "code", processName("code.EXE"))
}
