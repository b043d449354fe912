// Package keyboard defines key identities, key events and the platform input
// backend used to observe and synthesize keystrokes.
//
// Keys are identified by Windows virtual-key codes on every platform. The
// Linux backend translates evdev scan codes into this space so the rest of
// the daemon deals with one key vocabulary. Character mapping assumes a US
// layout.
package keyboard

import "fmt"

// Key is a virtual-key code.
type Key uint16

const (
	KeyBackspace Key = 0x08
	KeyTab       Key = 0x09
	KeyEnter     Key = 0x0D
	KeyShift     Key = 0x10
	KeyControl   Key = 0x11
	KeyAlt       Key = 0x12
	KeyPause     Key = 0x13
	KeyCapsLock  Key = 0x14
	KeyEscape    Key = 0x1B
	KeySpace     Key = 0x20
	KeyPageUp    Key = 0x21
	KeyPageDown  Key = 0x22
	KeyEnd       Key = 0x23
	KeyHome      Key = 0x24
	KeyLeft      Key = 0x25
	KeyUp        Key = 0x26
	KeyRight     Key = 0x27
	KeyDown      Key = 0x28
	KeyInsert    Key = 0x2D
	KeyDelete    Key = 0x2E

	Key0 Key = 0x30
	Key9 Key = 0x39
	KeyA Key = 0x41
	KeyZ Key = 0x5A

	KeyLeftSuper  Key = 0x5B
	KeyRightSuper Key = 0x5C
	KeyMenu       Key = 0x5D

	KeyNumpad0        Key = 0x60
	KeyNumpad9        Key = 0x69
	KeyNumpadMultiply Key = 0x6A
	KeyNumpadAdd      Key = 0x6B
	KeyNumpadSubtract Key = 0x6D
	KeyNumpadDecimal  Key = 0x6E
	KeyNumpadDivide   Key = 0x6F

	KeyF1  Key = 0x70
	KeyF24 Key = 0x87

	KeyNumLock    Key = 0x90
	KeyScrollLock Key = 0x91

	KeyLeftShift    Key = 0xA0
	KeyRightShift   Key = 0xA1
	KeyLeftControl  Key = 0xA2
	KeyRightControl Key = 0xA3
	KeyLeftAlt      Key = 0xA4
	KeyRightAlt     Key = 0xA5

	KeySemicolon    Key = 0xBA // ;:
	KeyEqual        Key = 0xBB // =+
	KeyComma        Key = 0xBC // ,<
	KeyMinus        Key = 0xBD // -_
	KeyPeriod       Key = 0xBE // .>
	KeySlash        Key = 0xBF // /?
	KeyGrave        Key = 0xC0 // `~
	KeyLeftBracket  Key = 0xDB // [{
	KeyBackslash    Key = 0xDC // \|
	KeyRightBracket Key = 0xDD // ]}
	KeyApostrophe   Key = 0xDE // '"
)

// Letter returns the key for an ASCII letter (either case).
func Letter(r rune) Key {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	return KeyA + Key(r-'A')
}

// Digit returns the top-row key for 0-9.
func Digit(d int) Key { return Key0 + Key(d) }

// Function returns the key for F1..F24.
func Function(n int) Key { return KeyF1 + Key(n-1) }

var shiftedDigits = [10]rune{')', '!', '@', '#', '$', '%', '^', '&', '*', '('}

type punct struct{ plain, shifted rune }

var punctuation = map[Key]punct{
	KeySemicolon:    {';', ':'},
	KeyEqual:        {'=', '+'},
	KeyComma:        {',', '<'},
	KeyMinus:        {'-', '_'},
	KeyPeriod:       {'.', '>'},
	KeySlash:        {'/', '?'},
	KeyGrave:        {'`', '~'},
	KeyLeftBracket:  {'[', '{'},
	KeyBackslash:    {'\\', '|'},
	KeyRightBracket: {']', '}'},
	KeyApostrophe:   {'\'', '"'},
}

var numpadOps = map[Key]rune{
	KeyNumpadMultiply: '*',
	KeyNumpadAdd:      '+',
	KeyNumpadSubtract: '-',
	KeyNumpadDecimal:  '.',
	KeyNumpadDivide:   '/',
}

// IsModifier reports whether k is a shift, control, alt or super key.
func (k Key) IsModifier() bool {
	switch k {
	case KeyShift, KeyControl, KeyAlt,
		KeyLeftShift, KeyRightShift,
		KeyLeftControl, KeyRightControl,
		KeyLeftAlt, KeyRightAlt,
		KeyLeftSuper, KeyRightSuper:
		return true
	}
	return false
}

// IsShift reports whether k is any shift key.
func (k Key) IsShift() bool {
	return k == KeyShift || k == KeyLeftShift || k == KeyRightShift
}

// IsPrintable reports whether k produces a character.
func (k Key) IsPrintable() bool {
	_, ok := k.Rune(Modifiers{})
	return ok
}

// Rune maps k to the character it types under mods. Letters honour shift
// and caps lock; everything else only shift.
func (k Key) Rune(mods Modifiers) (rune, bool) {
	switch {
	case k >= KeyA && k <= KeyZ:
		r := 'a' + rune(k-KeyA)
		if mods.Shift != mods.CapsLock {
			r -= 'a' - 'A'
		}
		return r, true
	case k >= Key0 && k <= Key9:
		if mods.Shift {
			return shiftedDigits[k-Key0], true
		}
		return '0' + rune(k-Key0), true
	case k >= KeyNumpad0 && k <= KeyNumpad9:
		return '0' + rune(k-KeyNumpad0), true
	case k == KeySpace:
		return ' ', true
	}
	if p, ok := punctuation[k]; ok {
		if mods.Shift {
			return p.shifted, true
		}
		return p.plain, true
	}
	if r, ok := numpadOps[k]; ok {
		return r, true
	}
	return 0, false
}

type typing struct {
	key   Key
	shift bool
}

var runeStrokes = make(map[rune]typing)

func init() {
	add := func(r rune, k Key, shift bool) {
		if _, dup := runeStrokes[r]; !dup {
			runeStrokes[r] = typing{k, shift}
		}
	}
	for k := KeyA; k <= KeyZ; k++ {
		add('a'+rune(k-KeyA), k, false)
		add('A'+rune(k-KeyA), k, true)
	}
	for k := Key0; k <= Key9; k++ {
		add('0'+rune(k-Key0), k, false)
		add(shiftedDigits[k-Key0], k, true)
	}
	for k, p := range punctuation {
		add(p.plain, k, false)
		add(p.shifted, k, true)
	}
	add(' ', KeySpace, false)
	add('\t', KeyTab, false)
	add('\n', KeyEnter, false)
}

// StrokeFor returns the key and shift state that type r, or false if r has
// no key on the layout.
func StrokeFor(r rune) (Key, bool, bool) {
	s, ok := runeStrokes[r]
	return s.key, s.shift, ok
}

var keyNames = map[Key]string{
	KeyBackspace: "Backspace", KeyTab: "Tab", KeyEnter: "Enter",
	KeyShift: "Shift", KeyControl: "Ctrl", KeyAlt: "Alt",
	KeyPause: "Pause", KeyCapsLock: "CapsLock", KeyEscape: "Esc",
	KeySpace: "Space", KeyPageUp: "PageUp", KeyPageDown: "PageDown",
	KeyEnd: "End", KeyHome: "Home", KeyLeft: "Left", KeyUp: "Up",
	KeyRight: "Right", KeyDown: "Down", KeyInsert: "Insert", KeyDelete: "Delete",
	KeyLeftSuper: "LWin", KeyRightSuper: "RWin", KeyMenu: "Menu",
	KeyLeftShift: "LShift", KeyRightShift: "RShift",
	KeyLeftControl: "LCtrl", KeyRightControl: "RCtrl",
	KeyLeftAlt: "LAlt", KeyRightAlt: "RAlt",
	KeyNumLock: "NumLock", KeyScrollLock: "ScrollLock",
}

func (k Key) String() string {
	if n, ok := keyNames[k]; ok {
		return n
	}
	switch {
	case k >= KeyA && k <= KeyZ:
		return string(rune('A' + (k - KeyA)))
	case k >= Key0 && k <= Key9:
		return string(rune('0' + (k - Key0)))
	case k >= KeyNumpad0 && k <= KeyNumpad9:
		return fmt.Sprintf("Num%d", k-KeyNumpad0)
	case k >= KeyF1 && k <= KeyF24:
		return fmt.Sprintf("F%d", k-KeyF1+1)
	}
	if p, ok := punctuation[k]; ok {
		return string(p.plain)
	}
	return fmt.Sprintf("VK(0x%02X)", uint16(k))
}
