package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, level)
		})
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(lvl))
		require.NoError(t, err)
		assert.Equal(t, lvl, parsed)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestHandlerRedactsSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	log := slog.New(NewHandler(&buf, cfg))

	log.Info("expanded", "shortcut", ";sig", "rendered", "Best regards", "clipboard_text", "hunter2")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, ";sig", entry["shortcut"])
	assert.Equal(t, "[REDACTED]", entry["rendered"])
	assert.Equal(t, "[REDACTED]", entry["clipboard_text"])
	assert.Equal(t, "expandd", entry["component"])
}

func TestHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = LevelWarn
	log := slog.New(NewHandler(&buf, cfg))

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Component = ""
	l := &Logger{Logger: slog.New(NewHandler(&buf, cfg)), config: cfg}

	l.WithComponent("engine").Info("started")
	assert.Contains(t, buf.String(), "component=engine")
}

func TestFileOutputAndRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(dir, "expandd.log")
	cfg.Compress = false
	cfg.MaxBackups = 2
	cfg.MaxAgeDays = 0

	r, err := NewFileRotator(cfg)
	require.NoError(t, err)

	// Force a day change so the next write rotates.
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return day }
	r.opened = day.AddDate(0, 0, -1)

	_, err = r.Write([]byte("first line\n"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Len(t, r.Backups(), 1)
	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "first line\n", string(data))
}

func TestRotatorPrunesBackups(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(dir, "x.log")
	cfg.Compress = false
	cfg.MaxBackups = 1
	cfg.MaxAgeDays = 0

	r, err := NewFileRotator(cfg)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		now := base.AddDate(0, 0, i+1)
		r.mu.Lock()
		r.now = func() time.Time { return now }
		r.mu.Unlock()
		_, err := r.Write([]byte(strings.Repeat("x", 10)))
		require.NoError(t, err)
		r.wg.Wait()
	}
	require.NoError(t, r.Close())
	assert.Len(t, r.Backups(), 1)
}

func TestCrashRecorder(t *testing.T) {
	dir := t.TempDir()
	rec := NewCrashRecorder(dir, 2)

	for i := 0; i < 3; i++ {
		rep, err := rec.Record("engine", "boom", map[string]any{"attempt": i})
		require.NoError(t, err)
		assert.Equal(t, "boom", rep.Panic)
		assert.NotEmpty(t, rep.Stack)
		time.Sleep(2 * time.Millisecond)
	}
	assert.Len(t, rec.Reports(), 2)
}

func TestNilCrashRecorderStillBuildsReport(t *testing.T) {
	var rec *CrashRecorder
	rep, err := rec.Record("capture", 42, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", rep.Panic)
}
