package keyboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuneLetters(t *testing.T) {
	tests := []struct {
		name string
		mods Modifiers
		want rune
	}{
		{"plain", Modifiers{}, 'k'},
		{"shift", Modifiers{Shift: true}, 'K'},
		{"caps", Modifiers{CapsLock: true}, 'K'},
		{"caps+shift", Modifiers{CapsLock: true, Shift: true}, 'k'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := Letter('k').Rune(tt.mods)
			require.True(t, ok)
			assert.Equal(t, tt.want, r)
		})
	}
}

func TestRuneDigitsAndPunctuation(t *testing.T) {
	shift := Modifiers{Shift: true}
	want := ")!@#$%^&*("
	for d := 0; d <= 9; d++ {
		r, ok := Digit(d).Rune(Modifiers{})
		require.True(t, ok)
		assert.Equal(t, rune('0'+d), r)

		r, ok = Digit(d).Rune(shift)
		require.True(t, ok)
		assert.Equal(t, rune(want[d]), r)
	}

	r, _ := KeyMinus.Rune(shift)
	assert.Equal(t, '_', r)
	r, _ = KeyEqual.Rune(Modifiers{})
	assert.Equal(t, '=', r)
	r, _ = KeyPeriod.Rune(shift)
	assert.Equal(t, '>', r)
	r, _ = KeySemicolon.Rune(Modifiers{})
	assert.Equal(t, ';', r)
	r, _ = KeyNumpad0.Rune(shift)
	assert.Equal(t, '0', r)
}

func TestPrintableAndModifierClassification(t *testing.T) {
	assert.True(t, KeySpace.IsPrintable())
	assert.True(t, Letter('a').IsPrintable())
	assert.False(t, KeyEnter.IsPrintable())
	assert.False(t, KeyTab.IsPrintable())
	assert.False(t, KeyBackspace.IsPrintable())
	assert.False(t, KeyLeft.IsPrintable())

	for _, k := range []Key{KeyLeftShift, KeyRightControl, KeyAlt, KeyLeftSuper} {
		assert.True(t, k.IsModifier(), k.String())
	}
	assert.False(t, KeyCapsLock.IsModifier())
	assert.False(t, KeyEscape.IsModifier())
}

func TestStrokeForRoundTrip(t *testing.T) {
	for _, r := range "Hello, World! 1+1=2 ~`[]{}\\|;:'\"<>/?_-" {
		k, shift, ok := StrokeFor(r)
		require.True(t, ok, "no stroke for %q", r)
		got, ok := k.Rune(Modifiers{Shift: shift})
		require.True(t, ok)
		assert.Equal(t, r, got)
	}

	_, _, ok := StrokeFor('é')
	assert.False(t, ok)

	k, shift, ok := StrokeFor('\n')
	require.True(t, ok)
	assert.Equal(t, KeyEnter, k)
	assert.False(t, shift)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "A", Letter('a').String())
	assert.Equal(t, "F12", Function(12).String())
	assert.Equal(t, "Space", KeySpace.String())
	assert.Equal(t, "VK(0xFF)", Key(0xFF).String())
}

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in   string
		want Combo
	}{
		{"Ctrl+Shift+K", Combo{Key: Letter('K'), Modifiers: Modifiers{Control: true, Shift: true}}},
		{"alt+f4", Combo{Key: Function(4), Modifiers: Modifiers{Alt: true}}},
		{"Win + Space", Combo{Key: KeySpace, Modifiers: Modifiers{Super: true}}},
		{"Ctrl++", Combo{Key: KeyEqual, Modifiers: Modifiers{Control: true}}},
		{"F9", Combo{Key: Function(9)}},
		{"Ctrl+1", Combo{Key: Digit(1), Modifiers: Modifiers{Control: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCombo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseComboErrors(t *testing.T) {
	for _, in := range []string{"", "Ctrl+Shift", "Ctrl+A+B", "Ctrl+Nope", "Ctrl++Shift+"} {
		_, err := ParseCombo(in)
		assert.Error(t, err, in)
	}
}

func TestComboMatches(t *testing.T) {
	c, err := ParseCombo("Ctrl+Shift+K")
	require.NoError(t, err)

	hit := KeyEvent{Key: Letter('K'), Transition: Down, Modifiers: Modifiers{Control: true, Shift: true}}
	assert.True(t, c.Matches(hit))

	up := hit
	up.Transition = Up
	assert.False(t, c.Matches(up))

	extra := hit
	extra.Modifiers.Alt = true
	assert.False(t, c.Matches(extra))

	caps := hit
	caps.Modifiers.CapsLock = true
	assert.True(t, c.Matches(caps))

	assert.Equal(t, "Ctrl+Shift+K", c.String())
}

func TestModTracker(t *testing.T) {
	var m modTracker
	mods := m.update(KeyLeftShift, Down)
	assert.True(t, mods.Shift)
	mods = m.update(KeyRightShift, Down)
	mods = m.update(KeyLeftShift, Up)
	assert.True(t, mods.Shift, "right shift still held")
	mods = m.update(KeyRightShift, Up)
	assert.False(t, mods.Shift)

	mods = m.update(KeyCapsLock, Down)
	assert.True(t, mods.CapsLock)
	mods = m.update(KeyCapsLock, Up)
	assert.True(t, mods.CapsLock)
	mods = m.update(KeyCapsLock, Down)
	assert.False(t, mods.CapsLock)
}

func TestModTrackerFollowsKeyStream(t *testing.T) {
	var m modTracker
	m.update(KeyLeftShift, Down)
	r, _ := Letter('B').Rune(m.update(Letter('B'), Down))
	assert.Equal(t, 'B', r)
	r, _ = Digit(1).Rune(m.update(Digit(1), Down))
	assert.Equal(t, '!', r)
	m.update(KeyLeftShift, Up)
	r, _ = Letter('B').Rune(m.update(Letter('B'), Down))
	assert.Equal(t, 'b', r)

	// A held CapsLock auto-repeats downs but toggles once.
	m.update(KeyCapsLock, Down)
	m.update(KeyCapsLock, Down)
	mods := m.update(KeyCapsLock, Down)
	assert.True(t, mods.CapsLock)
	mods = m.update(KeyCapsLock, Up)
	assert.True(t, mods.CapsLock)

	var seeded modTracker
	seeded.seedCapsLock(true)
	r, _ = Letter('Q').Rune(seeded.update(Letter('Q'), Down))
	assert.Equal(t, 'Q', r)
}

func TestFakeBackend(t *testing.T) {
	fake := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []rune
	err := fake.Start(ctx, func(e KeyEvent) Verdict {
		if e.Transition != Down {
			return Pass
		}
		if r, ok := e.Rune(); ok {
			seen = append(seen, r)
		}
		if e.Key == KeySpace {
			return Suppress
		}
		return Pass
	})
	require.NoError(t, err)
	assert.ErrorIs(t, fake.Start(ctx, nil), ErrAlreadyRunning)

	verdicts := fake.Type("Hi ")
	assert.Equal(t, []Verdict{Pass, Pass, Suppress}, verdicts)
	assert.Equal(t, "Hi ", string(seen))

	var strokes []Stroke
	strokes = append(strokes, Press(KeyBackspace)...)
	strokes = append(strokes, Stroke{KeyLeftShift, Down})
	strokes = append(strokes, Press(Letter('o'))...)
	strokes = append(strokes, Stroke{KeyLeftShift, Up})
	strokes = append(strokes, Press(Letter('k'))...)
	strokes = append(strokes, Press(KeyEnter)...)
	require.NoError(t, fake.Synthesize(strokes))

	assert.Equal(t, 1, fake.Backspaces())
	assert.Equal(t, "Ok\n", fake.Typed())

	fake.Reset()
	assert.Empty(t, fake.Strokes())
}
