package keyboard

import (
	"fmt"
	"strconv"
	"strings"
)

// Combo is a hotkey: a non-modifier key plus the exact modifiers that must be
// held, e.g. "Ctrl+Shift+K".
type Combo struct {
	Key       Key
	Modifiers Modifiers
}

var comboKeys = map[string]Key{
	"space": KeySpace, "tab": KeyTab, "enter": KeyEnter, "return": KeyEnter,
	"esc": KeyEscape, "escape": KeyEscape, "backspace": KeyBackspace,
	"insert": KeyInsert, "ins": KeyInsert, "delete": KeyDelete, "del": KeyDelete,
	"home": KeyHome, "end": KeyEnd, "pageup": KeyPageUp, "pgup": KeyPageUp,
	"pagedown": KeyPageDown, "pgdn": KeyPageDown,
	"left": KeyLeft, "right": KeyRight, "up": KeyUp, "down": KeyDown,
	"pause": KeyPause, "plus": KeyEqual, "minus": KeyMinus,
}

// ParseCombo parses strings such as "Ctrl+Shift+K", "Alt+F4" or
// "win+space". Modifier names are case-insensitive; exactly one
// non-modifier key is required.
func ParseCombo(s string) (Combo, error) {
	var c Combo
	combo := strings.TrimSpace(s)
	// "Ctrl++" binds the plus key.
	if strings.HasSuffix(combo, "++") {
		combo = strings.TrimSuffix(combo, "++") + "+plus"
	}
	haveKey := false
	for _, raw := range strings.Split(combo, "+") {
		p := strings.TrimSpace(raw)
		if p == "" {
			return Combo{}, fmt.Errorf("keyboard: empty element in hotkey %q", s)
		}
		switch strings.ToLower(p) {
		case "ctrl", "control":
			c.Modifiers.Control = true
			continue
		case "shift":
			c.Modifiers.Shift = true
			continue
		case "alt", "option":
			c.Modifiers.Alt = true
			continue
		case "win", "super", "cmd", "meta":
			c.Modifiers.Super = true
			continue
		}
		if haveKey {
			return Combo{}, fmt.Errorf("keyboard: hotkey %q names more than one key", s)
		}
		k, err := parseComboKey(p)
		if err != nil {
			return Combo{}, fmt.Errorf("keyboard: hotkey %q: %w", s, err)
		}
		c.Key = k
		haveKey = true
	}
	if !haveKey {
		return Combo{}, fmt.Errorf("keyboard: hotkey %q has no key", s)
	}
	return c, nil
}

func parseComboKey(p string) (Key, error) {
	lower := strings.ToLower(p)
	if k, ok := comboKeys[lower]; ok {
		return k, nil
	}
	if len(lower) >= 2 && lower[0] == 'f' {
		if n, err := strconv.Atoi(lower[1:]); err == nil && n >= 1 && n <= 24 {
			return Function(n), nil
		}
	}
	r := []rune(p)
	if len(r) == 1 {
		switch {
		case r[0] >= 'a' && r[0] <= 'z', r[0] >= 'A' && r[0] <= 'Z':
			return Letter(r[0]), nil
		case r[0] >= '0' && r[0] <= '9':
			return Digit(int(r[0] - '0')), nil
		}
		if k, _, ok := StrokeFor(r[0]); ok {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown key %q", p)
}

// Matches reports whether e is the key-down of this combo with exactly its
// modifiers held.
func (c Combo) Matches(e KeyEvent) bool {
	if e.Transition != Down || e.Key != c.Key {
		return false
	}
	m := e.Modifiers
	return m.Shift == c.Modifiers.Shift &&
		m.Control == c.Modifiers.Control &&
		m.Alt == c.Modifiers.Alt &&
		m.Super == c.Modifiers.Super
}

// IsZero reports whether c is unset.
func (c Combo) IsZero() bool { return c.Key == 0 }

func (c Combo) String() string {
	if c.IsZero() {
		return ""
	}
	mods := c.Modifiers.String()
	if mods == "" {
		return c.Key.String()
	}
	return mods + "+" + c.Key.String()
}
