package keyboard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherSerialisesSources(t *testing.T) {
	var (
		inFlight atomic.Int32
		overlaps atomic.Int32
		typed    []Key // unguarded on purpose; the dispatcher must serialise
	)
	d := newDispatcher(func(e KeyEvent) Verdict {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		if e.Transition == Down {
			typed = append(typed, e.Key)
		}
		inFlight.Add(-1)
		return Pass
	})

	const perDevice = 500
	var wg sync.WaitGroup
	for source, k := range []Key{KeyA, Letter('B')} {
		wg.Add(1)
		go func(source int, k Key) {
			defer wg.Done()
			for i := 0; i < perDevice; i++ {
				d.dispatch(source, k, Down, time.Now())
				d.dispatch(source, k, Up, time.Now())
			}
		}(source, k)
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load())
	assert.Len(t, typed, 2*perDevice)
}

func TestDispatcherPairsSuppressedReleases(t *testing.T) {
	d := newDispatcher(func(e KeyEvent) Verdict {
		if e.Key == KeySpace && e.Transition == Down {
			return Suppress
		}
		return Pass
	})
	now := time.Now()

	assert.Equal(t, Suppress, d.dispatch(0, KeySpace, Down, now))
	// Another device releasing the same key is not affected.
	assert.Equal(t, Pass, d.dispatch(1, KeySpace, Up, now))
	assert.Equal(t, Suppress, d.dispatch(0, KeySpace, Up, now))
	assert.Equal(t, Pass, d.dispatch(0, KeySpace, Up, now))
}

func TestDispatcherTracksModifiersAcrossSources(t *testing.T) {
	var got []Modifiers
	d := newDispatcher(func(e KeyEvent) Verdict {
		got = append(got, e.Modifiers)
		return Pass
	})
	now := time.Now()
	d.dispatch(0, KeyLeftShift, Down, now)
	d.dispatch(1, KeyA, Down, now)
	d.dispatch(0, KeyLeftShift, Up, now)
	d.dispatch(1, KeyA, Down, now)

	r, ok := KeyA.Rune(got[1])
	assert.True(t, ok)
	assert.Equal(t, 'A', r)
	r, _ = KeyA.Rune(got[3])
	assert.Equal(t, 'a', r)
}
