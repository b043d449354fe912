package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expandd/internal/engine"
	"expandd/internal/keyboard"
	"expandd/internal/snippet"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, ch <-chan engine.Expansion) engine.Expansion {
	t.Helper()
	select {
	case x := <-ch:
		return x
	case <-time.After(2 * time.Second):
		t.Fatal("no expansion")
		return engine.Expansion{}
	}
}

func TestDaemonExpandsWithPlugins(t *testing.T) {
	cfg, _ := testConfig(t)
	fake := keyboard.NewFake()

	d, err := newDaemon(cfg, fake, quietLogger())
	require.NoError(t, err)
	_, err = d.repo.Add(snippet.Snippet{Shortcut: "wx", Text: "It is {weather}", Enabled: true})
	require.NoError(t, err)
	_, err = d.repo.Add(snippet.Snippet{Shortcut: "brb", Text: "be right back", Enabled: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := d.engine.Subscribe(4)
	require.NoError(t, d.start(ctx))
	defer d.shutdown(context.Background())

	assert.Equal(t, keyboard.Suppress, fake.Type("wx ")[2])
	x := waitFor(t, out)
	require.NoError(t, x.Err)
	assert.Equal(t, "It is sunny", fake.Typed())
	assert.Equal(t, 2, fake.Backspaces())

	// Reloaded config: space no longer triggers.
	cfg.Triggers.UseSpace = false
	d.reconfigure(cfg)
	assert.Equal(t, keyboard.Pass, fake.Type("brb ")[3])

	results := d.checker.Check(ctx)
	assert.Equal(t, "healthy", string(results["engine"].Status))
	assert.Equal(t, "healthy", string(results["store"].Status))
}

func TestDaemonReloadsSnippets(t *testing.T) {
	cfg, _ := testConfig(t)
	fake := keyboard.NewFake()

	d, err := newDaemon(cfg, fake, quietLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := d.engine.Subscribe(4)
	require.NoError(t, d.start(ctx))
	defer d.shutdown(context.Background())

	assert.Equal(t, keyboard.Pass, fake.Type("ty ")[2])

	// Another process edits the store.
	repo, st, err := openRepository(cfg, quietLogger())
	require.NoError(t, err)
	_, err = repo.Add(snippet.Snippet{Shortcut: "ty", Text: "thank you", Enabled: true, Hotkey: "Ctrl+Alt+T"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.NoError(t, d.reloadSnippets())
	assert.Equal(t, keyboard.Suppress, fake.Type("ty ")[2])
	assert.Equal(t, "thank you", waitFor(t, out).Text)

	v := fake.Feed(keyboard.KeyEvent{
		Key:        keyboard.Letter('t'),
		Transition: keyboard.Down,
		Modifiers:  keyboard.Modifiers{Control: true, Alt: true},
	})
	assert.Equal(t, []keyboard.Verdict{keyboard.Suppress}, v)
	assert.Equal(t, engine.SourceHotkey, waitFor(t, out).Source)
}

func TestDaemonNotifiesFailures(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Notifications.OnError = true
	fake := keyboard.NewFake()

	d, err := newDaemon(cfg, fake, quietLogger())
	require.NoError(t, err)
	sent := make(chan string, 4)
	d.send = func(title, message string) error {
		sent <- title + ": " + message
		return nil
	}
	d.reconfigure(cfg)

	_, err = d.repo.Add(snippet.Snippet{Shortcut: "brb", Text: "be right back", Enabled: true})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.start(ctx))
	defer d.shutdown(context.Background())

	fake.SynthErr = assert.AnError
	fake.Type("brb ")
	select {
	case msg := <-sent:
		assert.Contains(t, msg, "Expansion failed")
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
}

func TestNewDaemonRejectsBadDiagnosticsAddress(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Diagnostics.Enabled = true
	cfg.Diagnostics.Listen = "0.0.0.0:7878"
	_, err := newDaemon(cfg, keyboard.NewFake(), quietLogger())
	assert.Error(t, err)
}
