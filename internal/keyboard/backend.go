package keyboard

import (
	"context"
	"errors"
	"sync"
)

// Backend captures keyboard events system-wide and injects synthetic
// keystrokes.
type Backend interface {
	// Start installs the capture hook and calls h for every event until ctx
	// is cancelled or Stop is called.
	Start(ctx context.Context, h Handler) error

	// Stop removes the hook.
	Stop() error

	// Synthesize injects the strokes in order.
	Synthesize(strokes []Stroke) error

	// Available reports whether capture can work with the current
	// permissions, with a human readable reason.
	Available() (bool, string)
}

var (
	// ErrNotAvailable is returned when no capture mechanism exists.
	ErrNotAvailable = errors.New("keyboard: capture not available on this platform")

	// ErrPermissionDenied is returned when the hook or device cannot be
	// opened with the current privileges.
	ErrPermissionDenied = errors.New("keyboard: insufficient permissions")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("keyboard: backend already running")

	// ErrNotRunning is returned when synthesizing before Start.
	ErrNotRunning = errors.New("keyboard: backend not running")
)

// New returns the backend for the current platform.
func New() Backend {
	return newPlatformBackend()
}

// modTracker derives Modifiers from the key stream on platforms that do not
// report modifier state with each event.
type modTracker struct {
	mu             sync.Mutex
	lshift, rshift bool
	lctrl, rctrl   bool
	lalt, ralt     bool
	lsuper, rsuper bool
	capsLock       bool
	capsDown       bool
}

// seedCapsLock sets the toggle state before the first event arrives.
func (m *modTracker) seedCapsLock(on bool) {
	m.mu.Lock()
	m.capsLock = on
	m.mu.Unlock()
}

func (m *modTracker) update(k Key, t Transition) Modifiers {
	m.mu.Lock()
	defer m.mu.Unlock()

	down := t == Down
	switch k {
	case KeyLeftShift, KeyShift:
		m.lshift = down
	case KeyRightShift:
		m.rshift = down
	case KeyLeftControl, KeyControl:
		m.lctrl = down
	case KeyRightControl:
		m.rctrl = down
	case KeyLeftAlt, KeyAlt:
		m.lalt = down
	case KeyRightAlt:
		m.ralt = down
	case KeyLeftSuper:
		m.lsuper = down
	case KeyRightSuper:
		m.rsuper = down
	case KeyCapsLock:
		// Auto-repeat delivers further downs while held; toggle once.
		if down && !m.capsDown {
			m.capsLock = !m.capsLock
		}
		m.capsDown = down
	}
	return Modifiers{
		Shift:    m.lshift || m.rshift,
		Control:  m.lctrl || m.rctrl,
		Alt:      m.lalt || m.ralt,
		Super:    m.lsuper || m.rsuper,
		CapsLock: m.capsLock,
	}
}
