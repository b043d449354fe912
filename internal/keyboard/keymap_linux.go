//go:build linux

package keyboard

// evdevKeys maps Linux input event codes (linux/input-event-codes.h) to
// virtual-key codes.
var evdevKeys = map[uint16]Key{
	1: KeyEscape,
	2: Digit(1), 3: Digit(2), 4: Digit(3), 5: Digit(4), 6: Digit(5),
	7: Digit(6), 8: Digit(7), 9: Digit(8), 10: Digit(9), 11: Digit(0),
	12: KeyMinus, 13: KeyEqual, 14: KeyBackspace, 15: KeyTab,
	16: Letter('Q'), 17: Letter('W'), 18: Letter('E'), 19: Letter('R'), 20: Letter('T'),
	21: Letter('Y'), 22: Letter('U'), 23: Letter('I'), 24: Letter('O'), 25: Letter('P'),
	26: KeyLeftBracket, 27: KeyRightBracket, 28: KeyEnter, 29: KeyLeftControl,
	30: Letter('A'), 31: Letter('S'), 32: Letter('D'), 33: Letter('F'), 34: Letter('G'),
	35: Letter('H'), 36: Letter('J'), 37: Letter('K'), 38: Letter('L'),
	39: KeySemicolon, 40: KeyApostrophe, 41: KeyGrave, 42: KeyLeftShift, 43: KeyBackslash,
	44: Letter('Z'), 45: Letter('X'), 46: Letter('C'), 47: Letter('V'), 48: Letter('B'),
	49: Letter('N'), 50: Letter('M'),
	51: KeyComma, 52: KeyPeriod, 53: KeySlash, 54: KeyRightShift,
	55: KeyNumpadMultiply, 56: KeyLeftAlt, 57: KeySpace, 58: KeyCapsLock,
	59: Function(1), 60: Function(2), 61: Function(3), 62: Function(4), 63: Function(5),
	64: Function(6), 65: Function(7), 66: Function(8), 67: Function(9), 68: Function(10),
	69: KeyNumLock, 70: KeyScrollLock,
	71: KeyNumpad0 + 7, 72: KeyNumpad0 + 8, 73: KeyNumpad0 + 9, 74: KeyNumpadSubtract,
	75: KeyNumpad0 + 4, 76: KeyNumpad0 + 5, 77: KeyNumpad0 + 6, 78: KeyNumpadAdd,
	79: KeyNumpad0 + 1, 80: KeyNumpad0 + 2, 81: KeyNumpad0 + 3, 82: KeyNumpad0,
	83: KeyNumpadDecimal,
	87: Function(11), 88: Function(12),
	96: KeyEnter, 97: KeyRightControl, 98: KeyNumpadDivide, 100: KeyRightAlt,
	102: KeyHome, 103: KeyUp, 104: KeyPageUp, 105: KeyLeft, 106: KeyRight,
	107: KeyEnd, 108: KeyDown, 109: KeyPageDown, 110: KeyInsert, 111: KeyDelete,
	119: KeyPause, 125: KeyLeftSuper, 126: KeyRightSuper, 127: KeyMenu,
}

var vkToEvdev = func() map[Key]uint16 {
	m := make(map[Key]uint16, len(evdevKeys))
	for code, k := range evdevKeys {
		// The main Enter key wins over keypad Enter.
		if prev, ok := m[k]; ok && prev < code {
			continue
		}
		m[k] = code
	}
	m[KeyShift] = 42
	m[KeyControl] = 29
	m[KeyAlt] = 56
	return m
}()
