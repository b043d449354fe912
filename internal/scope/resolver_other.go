//go:build !linux && !windows

package scope

import (
	"context"
	"time"
)

// NewPlatformResolver returns a Poller whose lookups always fail, so every
// application is allowed.
func NewPlatformResolver(interval time.Duration) *Poller {
	return NewPoller(func(context.Context) (Process, error) { return Process{}, ErrNoForeground }, interval)
}

// Available reports that foreground resolution is unsupported.
func Available() (bool, string) {
	return false, "foreground process lookup not supported on this platform"
}
