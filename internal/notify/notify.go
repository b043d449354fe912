// Package notify turns engine events into desktop notifications.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gen2brain/beeep"
	"golang.org/x/time/rate"

	"expandd/internal/config"
	"expandd/internal/engine"
)

const (
	appName    = "expandd"
	maxMessage = 200
)

// Sender delivers one notification.
type Sender func(title, message string) error

// Desktop sends through the platform notification service.
func Desktop(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Options configures a Notifier.
type Options struct {
	OnExpansion bool
	OnError     bool

	// RatePerMinute caps notifications; zero means unlimited.
	RatePerMinute int

	Send   Sender
	Logger *slog.Logger
}

// FromConfig builds Options from the notifications section.
func FromConfig(c config.NotifyConfig) Options {
	return Options{
		OnExpansion:   c.OnExpansion,
		OnError:       c.OnError,
		RatePerMinute: c.RatePerMinute,
	}
}

// Notifier reports expansions and failures. Notifications over the rate
// limit are dropped, never queued.
type Notifier struct {
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger

	sent    atomic.Int64
	dropped atomic.Int64
}

// New creates a Notifier.
func New(opts Options) *Notifier {
	if opts.Send == nil {
		opts.Send = Desktop
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RatePerMinute))
	}
	return &Notifier{
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     opts.Logger.With("component", "notify"),
	}
}

// Handle is an engine expansion listener.
func (n *Notifier) Handle(x engine.Expansion) {
	switch {
	case x.Err == nil:
		if n.opts.OnExpansion {
			n.notify("Expanded "+x.Shortcut, fmt.Sprintf("%d characters in %s", len([]rune(x.Text)), x.Duration.Round(time.Millisecond)))
		}
	case errors.Is(x.Err, engine.ErrCancelled):
	default:
		if n.opts.OnError {
			n.notify("Expansion failed", fmt.Sprintf("%s: %v", x.Shortcut, x.Err))
		}
	}
}

// Error reports a failure outside an expansion, such as a config reload.
func (n *Notifier) Error(title string, err error) {
	if n.opts.OnError && err != nil {
		n.notify(title, err.Error())
	}
}

func (n *Notifier) notify(title, message string) {
	if !n.limiter.Allow() {
		n.dropped.Add(1)
		n.log.Debug("notification dropped by rate limit", "title", title)
		return
	}
	if r := []rune(message); len(r) > maxMessage {
		message = string(r[:maxMessage]) + "..."
	}
	if err := n.opts.Send(appName+": "+title, message); err != nil {
		n.log.Warn("notification failed", "error", err)
		return
	}
	n.sent.Add(1)
}

// Sent returns how many notifications were delivered.
func (n *Notifier) Sent() int64 { return n.sent.Load() }

// Dropped returns how many notifications the rate limit discarded.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }
