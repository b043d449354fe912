// Package scope decides whether expansion is permitted in the application
// that currently has keyboard focus.
//
// Resolution failures always allow: a filter that cannot see the foreground
// process must not silently disable expansion.
package scope

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"expandd/internal/snippet"
)

// ErrNoForeground is returned when no focused window or owning process can
// be found.
var ErrNoForeground = errors.New("scope: no foreground process")

// Process identifies the owner of the focused top-level window.
type Process struct {
	PID     int    `json:"pid"`
	Name    string `json:"name"`
	ExePath string `json:"exe_path,omitempty"`
}

// Resolver finds the foreground process. Implementations used on the capture
// path must not block.
type Resolver interface {
	Foreground() (Process, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func() (Process, error)

func (f ResolverFunc) Foreground() (Process, error) { return f() }

// Static always reports the same process.
type Static Process

func (s Static) Foreground() (Process, error) { return Process(s), nil }

// Rules are the global allow and deny lists. Entries are case-insensitive
// substrings of the process name or executable path.
type Rules struct {
	Whitelist []string
	Blacklist []string
}

// Decide applies block then allow to p: any block match denies, a non-empty
// allow list admits only matches, and otherwise everything is allowed.
func Decide(allow, block []string, p Process) bool {
	name := strings.ToLower(p.Name)
	exe := strings.ToLower(p.ExePath)
	if matchesAny(block, name, exe) {
		return false
	}
	if hasEntries(allow) {
		return matchesAny(allow, name, exe)
	}
	return true
}

func matchesAny(entries []string, name, exe string) bool {
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if strings.Contains(name, e) || (exe != "" && strings.Contains(exe, e)) {
			return true
		}
	}
	return false
}

func hasEntries(entries []string) bool {
	for _, e := range entries {
		if strings.TrimSpace(e) != "" {
			return true
		}
	}
	return false
}

// Filter applies Rules to whatever the Resolver reports. It is safe for
// concurrent use; SetRules swaps the lists atomically.
type Filter struct {
	resolver Resolver
	rules    atomic.Pointer[Rules]
	log      *slog.Logger
}

// NewFilter creates a filter with empty lists; the owner installs them with
// SetRules. A nil resolver always allows.
func NewFilter(r Resolver, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Filter{resolver: r, log: logger.With("component", "scope")}
	f.SetRules(Rules{})
	return f
}

// SetRules replaces the global lists.
func (f *Filter) SetRules(r Rules) {
	r.Whitelist = append([]string(nil), r.Whitelist...)
	r.Blacklist = append([]string(nil), r.Blacklist...)
	f.rules.Store(&r)
}

// Rules returns the active global lists.
func (f *Filter) Rules() Rules {
	return *f.rules.Load()
}

// Current returns the foreground process, or false when it cannot be
// resolved.
func (f *Filter) Current() (Process, bool) {
	if f.resolver == nil {
		return Process{}, false
	}
	p, err := f.resolver.Foreground()
	if err != nil {
		f.log.Debug("foreground resolution failed", "error", err)
		return Process{}, false
	}
	return p, true
}

// Allowed applies the global rules to the foreground process.
func (f *Filter) Allowed() bool {
	r := f.rules.Load()
	if !hasEntries(r.Whitelist) && !hasEntries(r.Blacklist) {
		return true
	}
	p, ok := f.Current()
	if !ok {
		return true
	}
	return Decide(r.Whitelist, r.Blacklist, p)
}

// SnippetAllowed applies the snippet's own lists to the foreground process.
func (f *Filter) SnippetAllowed(s *snippet.Snippet) bool {
	if s == nil || (!hasEntries(s.AllowedApps) && !hasEntries(s.BlockedApps)) {
		return true
	}
	p, ok := f.Current()
	if !ok {
		return true
	}
	return Decide(s.AllowedApps, s.BlockedApps, p)
}

// processName strips the directory and a trailing ".exe".
func processName(exe string) string {
	base := filepath.Base(exe)
	if strings.EqualFold(filepath.Ext(base), ".exe") {
		base = base[:len(base)-4]
	}
	return base
}
