package keyboard

import (
	"context"
	"strings"
	"sync"
	"time"
)

// FakeBackend is an in-memory Backend for tests. Feed delivers scripted
// events to the installed handler synchronously; synthesized strokes are
// recorded rather than injected.
type FakeBackend struct {
	mu       sync.Mutex
	handler  Handler
	running  bool
	strokes  []Stroke
	verdicts []Verdict
	mods     modTracker

	// SynthErr, when set, is returned by Synthesize.
	SynthErr error
}

// NewFake creates a FakeBackend.
func NewFake() *FakeBackend {
	return &FakeBackend{}
}

// Start installs h.
func (f *FakeBackend) Start(ctx context.Context, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return ErrAlreadyRunning
	}
	f.handler = h
	f.running = true
	go func() {
		<-ctx.Done()
		f.Stop()
	}()
	return nil
}

// Stop uninstalls the handler.
func (f *FakeBackend) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.handler = nil
	return nil
}

// Available always succeeds.
func (f *FakeBackend) Available() (bool, string) {
	return true, "fake backend"
}

// Synthesize records strokes.
func (f *FakeBackend) Synthesize(strokes []Stroke) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SynthErr != nil {
		return f.SynthErr
	}
	f.strokes = append(f.strokes, strokes...)
	return nil
}

// Feed delivers events to the handler and returns its verdicts. Events are
// dropped when the backend is not running.
func (f *FakeBackend) Feed(events ...KeyEvent) []Verdict {
	out := make([]Verdict, 0, len(events))
	for _, e := range events {
		f.mu.Lock()
		h := f.handler
		f.mu.Unlock()
		if h == nil {
			continue
		}
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		v := h(e)
		out = append(out, v)
		f.mu.Lock()
		f.verdicts = append(f.verdicts, v)
		f.mu.Unlock()
	}
	return out
}

// Tap feeds a down/up pair for k with modifier state tracked across calls,
// and returns the verdict of the key-down.
func (f *FakeBackend) Tap(k Key) Verdict {
	mods := f.mods.update(k, Down)
	vs := f.Feed(KeyEvent{Key: k, Transition: Down, Modifiers: mods})
	mods = f.mods.update(k, Up)
	f.Feed(KeyEvent{Key: k, Transition: Up, Modifiers: mods})
	if len(vs) == 0 {
		return Pass
	}
	return vs[0]
}

// Type taps the keys that produce s, holding shift where needed, and returns
// the verdict of each character's key-down.
func (f *FakeBackend) Type(s string) []Verdict {
	var out []Verdict
	for _, r := range s {
		k, shift, ok := StrokeFor(r)
		if !ok {
			continue
		}
		if shift {
			f.mods.update(KeyLeftShift, Down)
			f.Feed(KeyEvent{Key: KeyLeftShift, Transition: Down, Modifiers: Modifiers{Shift: true}})
		}
		out = append(out, f.Tap(k))
		if shift {
			f.mods.update(KeyLeftShift, Up)
			f.Feed(KeyEvent{Key: KeyLeftShift, Transition: Up})
		}
	}
	return out
}

// Strokes returns a copy of everything synthesized so far.
func (f *FakeBackend) Strokes() []Stroke {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Stroke(nil), f.strokes...)
}

// Backspaces counts synthesized backspace presses.
func (f *FakeBackend) Backspaces() int {
	n := 0
	for _, s := range f.Strokes() {
		if s.Key == KeyBackspace && s.Transition == Down {
			n++
		}
	}
	return n
}

// Typed replays the synthesized strokes into the text they would produce,
// ignoring backspaces.
func (f *FakeBackend) Typed() string {
	var b strings.Builder
	var mt modTracker
	for _, s := range f.Strokes() {
		mods := mt.update(s.Key, s.Transition)
		if s.Transition != Down || s.Key == KeyBackspace {
			continue
		}
		switch s.Key {
		case KeyEnter:
			b.WriteByte('\n')
		case KeyTab:
			b.WriteByte('\t')
		default:
			if r, ok := s.Key.Rune(mods); ok {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// Reset forgets recorded strokes and verdicts.
func (f *FakeBackend) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strokes = nil
	f.verdicts = nil
}
