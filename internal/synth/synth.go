// Package synth turns rendered snippet text into synthetic keystrokes.
package synth

import (
	"fmt"
	"strings"
	"time"

	"expandd/internal/keyboard"
)

// CursorMarker ends emission; the user continues typing from there.
const CursorMarker = "{cursor}"

// Default pacing between synthetic keystrokes.
const (
	DefaultKeystrokeDelay = 5 * time.Millisecond
	DefaultBackspaceDelay = 10 * time.Millisecond
)

// Synthesizer paces strokes into a keyboard backend. It is not safe for
// concurrent use; the engine drives it from a single worker.
type Synthesizer struct {
	Backend        keyboard.Backend
	KeystrokeDelay time.Duration
	BackspaceDelay time.Duration

	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

// New returns a synthesizer with the default delays.
func New(b keyboard.Backend) *Synthesizer {
	return &Synthesizer{
		Backend:        b,
		KeystrokeDelay: DefaultKeystrokeDelay,
		BackspaceDelay: DefaultBackspaceDelay,
	}
}

func (s *Synthesizer) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Erase sends n backspaces.
func (s *Synthesizer) Erase(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Backend.Synthesize(keyboard.Press(keyboard.KeyBackspace)); err != nil {
			return fmt.Errorf("synth: backspace %d of %d: %w", i+1, n, err)
		}
		s.sleep(s.BackspaceDelay)
	}
	return nil
}

// Result summarises one Type call.
type Result struct {
	// Typed counts characters emitted.
	Typed int
	// Skipped counts characters with no key on the layout.
	Skipped int
	// Truncated is set when a cursor marker cut the text short.
	Truncated bool
}

// Type emits text up to the first cursor marker.
func (s *Synthesizer) Type(text string) (Result, error) {
	var res Result
	text, res.Truncated = TruncateAtCursor(text)
	for _, r := range text {
		strokes, ok := strokesFor(r)
		if !ok {
			if r != '\r' {
				res.Skipped++
			}
			continue
		}
		if err := s.Backend.Synthesize(strokes); err != nil {
			return res, fmt.Errorf("synth: type %q: %w", r, err)
		}
		res.Typed++
		s.sleep(s.KeystrokeDelay)
	}
	return res, nil
}

// Plan returns every stroke Type would send for text, without pacing.
func Plan(text string) []keyboard.Stroke {
	text, _ = TruncateAtCursor(text)
	var out []keyboard.Stroke
	for _, r := range text {
		if strokes, ok := strokesFor(r); ok {
			out = append(out, strokes...)
		}
	}
	return out
}

// strokesFor maps one character to its key sequence. Carriage returns have
// none; "\n" alone becomes Enter.
func strokesFor(r rune) ([]keyboard.Stroke, bool) {
	if r == '\r' {
		return nil, false
	}
	k, shift, ok := keyboard.StrokeFor(r)
	if !ok {
		return nil, false
	}
	if !shift {
		return keyboard.Press(k), true
	}
	return []keyboard.Stroke{
		{Key: keyboard.KeyLeftShift, Transition: keyboard.Down},
		{Key: k, Transition: keyboard.Down},
		{Key: k, Transition: keyboard.Up},
		{Key: keyboard.KeyLeftShift, Transition: keyboard.Up},
	}, true
}

// TruncateAtCursor cuts text at the first cursor marker (any case) and
// reports whether one was found.
func TruncateAtCursor(text string) (string, bool) {
	n := len(CursorMarker)
	for i := strings.IndexByte(text, '{'); i >= 0 && i+n <= len(text); {
		if strings.EqualFold(text[i:i+n], CursorMarker) {
			return text[:i], true
		}
		j := strings.IndexByte(text[i+1:], '{')
		if j < 0 {
			break
		}
		i += 1 + j
	}
	return text, false
}
