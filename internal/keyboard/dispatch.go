package keyboard

import (
	"sync"
	"time"
)

// dispatcher funnels events from several capture sources, such as one read
// loop per evdev device, into a single Handler. Handler calls never
// overlap.
type dispatcher struct {
	mu   sync.Mutex
	h    Handler
	mods modTracker
	// held marks presses that were suppressed so their releases are
	// swallowed too and the focused application never sees an unpaired
	// key-up.
	held map[heldKey]bool
}

type heldKey struct {
	source int
	key    Key
}

func newDispatcher(h Handler) *dispatcher {
	return &dispatcher{h: h, held: make(map[heldKey]bool)}
}

// dispatch delivers one event from source and returns the verdict for the
// raw event.
func (d *dispatcher) dispatch(source int, k Key, t Transition, at time.Time) Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	mods := d.mods.update(k, t)
	verdict := d.h(KeyEvent{Key: k, Transition: t, Modifiers: mods, Time: at})
	hk := heldKey{source: source, key: k}
	switch {
	case t == Down && verdict == Suppress:
		d.held[hk] = true
	case t == Up && d.held[hk]:
		delete(d.held, hk)
		verdict = Suppress
	}
	return verdict
}
