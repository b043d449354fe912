// Package trigger implements the typed-character buffer that recognises
// when a shortcut has been completed by a trigger key.
package trigger

import (
	"expandd/internal/keyboard"
)

// DefaultMaxLen bounds the buffer when no setting is given.
const DefaultMaxLen = 50

// Settings selects the trigger keys and buffer bound.
type Settings struct {
	UseSpace bool
	UseTab   bool
	UseEnter bool
	MaxLen   int
}

// DefaultSettings enables space and tab triggers.
func DefaultSettings() Settings {
	return Settings{UseSpace: true, UseTab: true, MaxLen: DefaultMaxLen}
}

// IsTrigger reports whether k is an enabled trigger key.
func (s Settings) IsTrigger(k keyboard.Key) bool {
	switch k {
	case keyboard.KeySpace:
		return s.UseSpace
	case keyboard.KeyTab:
		return s.UseTab
	case keyboard.KeyEnter:
		return s.UseEnter
	}
	return false
}

// State is the buffer state.
type State int

const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "idle"
}

// Kind says what Feed did with an event.
type Kind int

const (
	None Kind = iota
	Appended
	Erased
	Cleared
	Trigger
)

func (k Kind) String() string {
	switch k {
	case Appended:
		return "appended"
	case Erased:
		return "erased"
	case Cleared:
		return "cleared"
	case Trigger:
		return "trigger"
	}
	return "none"
}

// Action is the result of feeding one event. For Trigger, Snapshot holds the
// buffer contents at the moment the trigger key was pressed.
type Action struct {
	Kind     Kind
	Snapshot string
	Key      keyboard.Key
}

// Buffer accumulates typed characters since the last boundary. It is owned
// by the capture goroutine and is not safe for concurrent use.
type Buffer struct {
	settings Settings
	runes    []rune
}

// NewBuffer creates an empty buffer.
func NewBuffer(s Settings) *Buffer {
	b := &Buffer{}
	b.SetSettings(s)
	return b
}

// SetSettings replaces the settings, trimming the buffer to the new bound.
func (b *Buffer) SetSettings(s Settings) {
	if s.MaxLen <= 0 {
		s.MaxLen = DefaultMaxLen
	}
	b.settings = s
	if over := len(b.runes) - s.MaxLen; over > 0 {
		b.runes = append(b.runes[:0], b.runes[over:]...)
	}
}

// Settings returns the active settings.
func (b *Buffer) Settings() Settings { return b.settings }

// Feed applies one key event and reports what happened. Key-up events and
// modifiers leave the buffer untouched.
func (b *Buffer) Feed(e keyboard.KeyEvent) Action {
	if e.Transition != keyboard.Down || e.Key.IsModifier() {
		return Action{Kind: None, Key: e.Key}
	}

	// Ctrl/Alt/Win chords are commands, not text, and never complete a
	// shortcut: Ctrl+Space or Ctrl+Backspace just clear the buffer.
	if e.Modifiers.Control || e.Modifiers.Alt || e.Modifiers.Super {
		b.Reset()
		return Action{Kind: Cleared, Key: e.Key}
	}

	if b.settings.IsTrigger(e.Key) {
		if len(b.runes) == 0 {
			return Action{Kind: None, Key: e.Key}
		}
		snap := string(b.runes)
		b.Reset()
		return Action{Kind: Trigger, Snapshot: snap, Key: e.Key}
	}

	if e.Key == keyboard.KeyBackspace {
		if len(b.runes) == 0 {
			return Action{Kind: None, Key: e.Key}
		}
		b.runes = b.runes[:len(b.runes)-1]
		return Action{Kind: Erased, Key: e.Key}
	}

	if r, ok := e.Rune(); ok {
		b.append(r)
		return Action{Kind: Appended, Key: e.Key}
	}

	b.Reset()
	return Action{Kind: Cleared, Key: e.Key}
}

func (b *Buffer) append(r rune) {
	if len(b.runes) >= b.settings.MaxLen {
		n := len(b.runes) - b.settings.MaxLen + 1
		b.runes = append(b.runes[:0], b.runes[n:]...)
	}
	b.runes = append(b.runes, r)
}

// Reset empties the buffer.
func (b *Buffer) Reset() { b.runes = b.runes[:0] }

// String returns the buffered text.
func (b *Buffer) String() string { return string(b.runes) }

// Len returns the number of buffered characters.
func (b *Buffer) Len() int { return len(b.runes) }

// State reports Idle for an empty buffer, Accumulating otherwise.
func (b *Buffer) State() State {
	if len(b.runes) == 0 {
		return Idle
	}
	return Accumulating
}
