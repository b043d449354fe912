package variables

import (
	"math"
	"math/rand/v2"
	"os"
	"os/user"
	"strings"
	"sync"
	"time"

	"expandd/internal/plugin"
)

// ClipboardSource supplies clipboard text and history.
type ClipboardSource interface {
	CurrentText() (string, bool)
	// RecentHistory returns up to n distinct entries, most recent first.
	RecentHistory(n int) []string
}

// Context is the state shared by every render: counters, the random source
// and the collaborators that variables read from. Counters live for the
// lifetime of the Context.
type Context struct {
	mu       sync.Mutex
	counters map[string]int
	named    map[string]int
	rng      *rand.Rand

	now       func() time.Time
	username  func() string
	clipboard ClipboardSource
	plugins   plugin.Resolver
}

// NewContext creates a context with a time-seeded random source.
func NewContext(clip ClipboardSource, plugins plugin.Resolver) *Context {
	seed := uint64(time.Now().UnixNano())
	return &Context{
		counters:  make(map[string]int),
		named:     make(map[string]int),
		rng:       rand.New(rand.NewPCG(seed, seed>>1|1)),
		now:       time.Now,
		username:  currentUsername,
		clipboard: clip,
		plugins:   plugins,
	}
}

// SetClock overrides the time source.
func (c *Context) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// SetRand overrides the random source.
func (c *Context) SetRand(r *rand.Rand) {
	c.mu.Lock()
	c.rng = r
	c.mu.Unlock()
}

// SetUsername overrides the user lookup.
func (c *Context) SetUsername(fn func() string) {
	c.mu.Lock()
	c.username = fn
	c.mu.Unlock()
}

// SetClipboard replaces the clipboard source.
func (c *Context) SetClipboard(clip ClipboardSource) {
	c.mu.Lock()
	c.clipboard = clip
	c.mu.Unlock()
}

// SetPlugins replaces the plugin resolver.
func (c *Context) SetPlugins(p plugin.Resolver) {
	c.mu.Lock()
	c.plugins = p
	c.mu.Unlock()
}

// ResetCounter forgets the counter of one snippet.
func (c *Context) ResetCounter(snippetID string) {
	c.mu.Lock()
	delete(c.counters, snippetID)
	c.mu.Unlock()
}

// ResetNamedCounter forgets a named counter.
func (c *Context) ResetNamedCounter(name string) {
	c.mu.Lock()
	delete(c.named, name)
	c.mu.Unlock()
}

// ResetAll forgets every counter.
func (c *Context) ResetAll() {
	c.mu.Lock()
	clear(c.counters)
	clear(c.named)
	c.mu.Unlock()
}

// Counter returns the current value of a snippet counter.
func (c *Context) Counter(snippetID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[snippetID]
}

// NamedCounter returns the current value of a named counter.
func (c *Context) NamedCounter(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.named[name]
}

func (c *Context) next(snippetID, name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name != "" {
		c.named[name]++
		return c.named[name]
	}
	c.counters[snippetID]++
	return c.counters[snippetID]
}

// intRange returns a value in [lo, hi]. The span is computed in uint64 so
// extreme bounds cannot overflow.
func (c *Context) intRange(lo, hi int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	span := uint64(hi) - uint64(lo)
	if span == math.MaxUint64 {
		return int(c.rng.Uint64())
	}
	return lo + int(c.rng.Uint64N(span+1))
}

func (c *Context) snapshot() (time.Time, func() string, ClipboardSource, plugin.Resolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now(), c.username, c.clipboard, c.plugins
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		name := u.Username
		// Windows reports DOMAIN\user.
		if i := strings.LastIndexByte(name, '\\'); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	for _, env := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}
