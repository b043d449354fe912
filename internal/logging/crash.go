package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Component    string         `json:"component"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	Panic        string         `json:"panic"`
	Stack        string         `json:"stack"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashRecorder writes crash reports for panics recovered at process
// boundaries (the keyboard callback, the synthesis worker). Reports are kept
// on disk so a degraded daemon can still be diagnosed after the fact.
type CrashRecorder struct {
	mu  sync.Mutex
	dir string
	max int
}

// DefaultCrashDir is a "crashes" directory next to the default log file.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(DefaultLogPath()), "crashes")
}

// NewCrashRecorder returns a recorder writing into dir, keeping at most max
// reports (0 keeps all).
func NewCrashRecorder(dir string, max int) *CrashRecorder {
	if dir == "" {
		dir = DefaultCrashDir()
	}
	return &CrashRecorder{dir: dir, max: max}
}

// Record builds a report for the panic value v and writes it. The returned
// report is valid even when writing fails.
func (c *CrashRecorder) Record(component string, v any, ctx map[string]any) (CrashReport, error) {
	rep := CrashReport{
		Timestamp:    time.Now().UTC(),
		Component:    component,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		Panic:        fmt.Sprint(v),
		Stack:        string(debug.Stack()),
		Context:      ctx,
	}
	if c == nil {
		return rep, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return rep, fmt.Errorf("create crash dir: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return rep, fmt.Errorf("marshal crash report: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", component, rep.Timestamp.Format("20060102-150405.000000"))
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o640); err != nil {
		return rep, fmt.Errorf("write crash report: %w", err)
	}
	c.prune()
	return rep, nil
}

// Reports returns the stored crash report paths, oldest first.
func (c *CrashRecorder) Reports() []string {
	files, _ := filepath.Glob(filepath.Join(c.dir, "crash-*.json"))
	return files
}

func (c *CrashRecorder) prune() {
	if c.max <= 0 {
		return
	}
	files := c.Reports()
	for len(files) > c.max {
		os.Remove(files[0])
		files = files[1:]
	}
}
