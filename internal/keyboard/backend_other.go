//go:build !linux && !windows

package keyboard

import "context"

// stubBackend is used on platforms without a capture implementation.
type stubBackend struct{}

func newPlatformBackend() Backend {
	return stubBackend{}
}

func (stubBackend) Available() (bool, string) {
	return false, "keyboard capture is not implemented on this platform"
}

func (stubBackend) Start(context.Context, Handler) error { return ErrNotAvailable }

func (stubBackend) Stop() error { return nil }

func (stubBackend) Synthesize([]Stroke) error { return ErrNotAvailable }
