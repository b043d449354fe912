package keyboard

import (
	"strings"
	"time"
)

// Transition is the direction of a key event.
type Transition uint8

const (
	Down Transition = iota
	Up
)

func (t Transition) String() string {
	if t == Up {
		return "up"
	}
	return "down"
}

// Modifiers is the modifier state held when a key event occurred.
type Modifiers struct {
	Shift    bool `json:"shift"`
	Control  bool `json:"control"`
	Alt      bool `json:"alt"`
	Super    bool `json:"super"`
	CapsLock bool `json:"caps_lock"`
}

// Any reports whether a chording modifier (not caps lock) is held.
func (m Modifiers) Any() bool {
	return m.Shift || m.Control || m.Alt || m.Super
}

func (m Modifiers) String() string {
	var parts []string
	if m.Control {
		parts = append(parts, "Ctrl")
	}
	if m.Alt {
		parts = append(parts, "Alt")
	}
	if m.Shift {
		parts = append(parts, "Shift")
	}
	if m.Super {
		parts = append(parts, "Win")
	}
	return strings.Join(parts, "+")
}

// KeyEvent is one observed key transition. Events are consumed once by the
// handler and not retained.
type KeyEvent struct {
	Key        Key
	Transition Transition
	Modifiers  Modifiers

	// Injected is set when the platform marks the event as synthesized,
	// including by this process.
	Injected bool

	Time time.Time
}

// Rune is shorthand for e.Key.Rune(e.Modifiers).
func (e KeyEvent) Rune() (rune, bool) {
	return e.Key.Rune(e.Modifiers)
}

// Stroke is one synthesized key transition.
type Stroke struct {
	Key        Key
	Transition Transition
}

// Press returns the down/up pair for k.
func Press(k Key) []Stroke {
	return []Stroke{{k, Down}, {k, Up}}
}

// Verdict tells the backend what to do with a captured event.
type Verdict uint8

const (
	// Pass forwards the event to the focused application.
	Pass Verdict = iota
	// Suppress consumes the event.
	Suppress
)

// Handler receives every captured event on the backend's capture goroutine
// and must return quickly.
type Handler func(KeyEvent) Verdict
