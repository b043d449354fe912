package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

var (
	ErrNoResolve = errors.New("plugin: script must return a table with a resolve function")
	ErrClosed    = errors.New("plugin: host closed")
)

// DefaultTimeout bounds a single resolve call.
const DefaultTimeout = 50 * time.Millisecond

// Info describes a loaded plugin.
type Info struct {
	Name      string
	Path      string
	Variables []string
}

type luaPlugin struct {
	info    Info
	mu      sync.Mutex
	L       *lua.LState
	resolve *lua.LFunction
	names   map[string]bool
}

// LuaHost runs variable plugins written in Lua. Each script runs in its own
// state with only the base, table, string and math libraries, and returns
//
//	return {
//	  name = "weather",
//	  variables = {"weather"},          -- optional; empty means "ask me"
//	  resolve = function(name, params) return "sunny" end,
//	}
//
// resolve returns a string (or number) to substitute, or nil to decline.
type LuaHost struct {
	mu      sync.RWMutex
	plugins []*luaPlugin
	timeout time.Duration
	closed  bool
	log     *slog.Logger
}

// NewLuaHost creates an empty host. timeout <= 0 uses DefaultTimeout.
func NewLuaHost(timeout time.Duration, logger *slog.Logger) *LuaHost {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LuaHost{timeout: timeout, log: logger.With("component", "plugins")}
}

// LoadDir loads every *.lua file in dir. Broken scripts are logged and
// skipped; a missing dir loads nothing.
func (h *LuaHost) LoadDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return 0, fmt.Errorf("plugin: scan %s: %w", dir, err)
	}
	sort.Strings(paths)
	loaded := 0
	for _, p := range paths {
		if err := h.LoadFile(p); err != nil {
			h.log.Warn("skipping plugin", "path", p, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// LoadFile loads one script.
func (h *LuaHost) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("plugin: read %s: %w", path, err)
	}
	return h.load(path, string(src))
}

// LoadString loads a script from source; path is used for reporting only.
func (h *LuaHost) LoadString(path, src string) error {
	return h.load(path, src)
}

func (h *LuaHost) load(path, src string) error {
	L := newSandbox()
	ctx, cancel := context.WithTimeout(context.Background(), 10*h.timeout)
	defer cancel()
	L.SetContext(ctx)

	fn, err := L.LoadString(src)
	if err != nil {
		L.Close()
		return fmt.Errorf("plugin: compile %s: %w", path, err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		L.Close()
		return fmt.Errorf("plugin: run %s: %w", path, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	L.RemoveContext()

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return fmt.Errorf("%w (%s)", ErrNoResolve, path)
	}
	resolve, ok := tbl.RawGetString("resolve").(*lua.LFunction)
	if !ok {
		L.Close()
		return fmt.Errorf("%w (%s)", ErrNoResolve, path)
	}

	p := &luaPlugin{
		info:    Info{Name: lua.LVAsString(tbl.RawGetString("name")), Path: path},
		L:       L,
		resolve: resolve,
		names:   make(map[string]bool),
	}
	if p.info.Name == "" {
		p.info.Name = trimExt(filepath.Base(path))
	}
	if vars, ok := tbl.RawGetString("variables").(*lua.LTable); ok {
		vars.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok && s != "" {
				p.names[string(s)] = true
				p.info.Variables = append(p.info.Variables, string(s))
			}
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		L.Close()
		return ErrClosed
	}
	h.plugins = append(h.plugins, p)
	h.log.Info("plugin loaded", "name", p.info.Name, "variables", p.info.Variables)
	return nil
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	// Base opens file loaders; scripts get no filesystem access.
	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// Resolve asks plugins that declare name first, then plugins that declare
// nothing. Errors and timeouts count as a decline.
func (h *LuaHost) Resolve(name string, params map[string]string) (string, bool) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return "", false
	}
	var declared, open []*luaPlugin
	for _, p := range h.plugins {
		switch {
		case p.names[name]:
			declared = append(declared, p)
		case len(p.names) == 0:
			open = append(open, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range append(declared, open...) {
		if v, ok := h.call(p, name, params); ok {
			return v, true
		}
	}
	return "", false
}

func (h *LuaHost) call(p *luaPlugin, name string, params map[string]string) (out string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("plugin panicked", "plugin", p.info.Name, "variable", name, "panic", r)
			out, ok = "", false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	p.L.SetContext(ctx)
	defer p.L.RemoveContext()

	tbl := p.L.NewTable()
	for k, v := range params {
		tbl.RawSetString(k, lua.LString(v))
	}
	if err := p.L.CallByParam(lua.P{Fn: p.resolve, NRet: 1, Protect: true}, lua.LString(name), tbl); err != nil {
		h.log.Warn("plugin resolve failed", "plugin", p.info.Name, "variable", name, "error", err)
		return "", false
	}
	ret := p.L.Get(-1)
	p.L.Pop(1)

	switch v := ret.(type) {
	case lua.LString:
		return string(v), true
	case lua.LNumber:
		return v.String(), true
	case lua.LBool:
		return v.String(), true
	}
	return "", false
}

// Plugins describes the loaded plugins.
func (h *LuaHost) Plugins() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Info, len(h.plugins))
	for i, p := range h.plugins {
		out[i] = p.info
		out[i].Variables = append([]string(nil), p.info.Variables...)
	}
	return out
}

// Provided lists every declared variable name, sorted.
func (h *LuaHost) Provided() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var names []string
	for _, p := range h.plugins {
		names = append(names, p.info.Variables...)
	}
	sort.Strings(names)
	return names
}

// Close releases every Lua state.
func (h *LuaHost) Close() error {
	h.mu.Lock()
	plugins := h.plugins
	h.plugins = nil
	h.closed = true
	h.mu.Unlock()
	for _, p := range plugins {
		p.mu.Lock()
		p.L.Close()
		p.mu.Unlock()
	}
	return nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
