// Package engine ties keyboard capture to snippet expansion.
//
// The backend delivers every key event to the engine's handler on its
// capture goroutine. The handler only classifies: it feeds the trigger
// buffer, looks up the snippet and hands the expansion to a single worker
// goroutine, which collects form values, renders variables and types the
// result. An atomic busy flag covers the whole expansion so that the
// engine's own synthetic keystrokes are never read back as typing and at
// most one expansion is ever in flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"expandd/internal/keyboard"
	"expandd/internal/logging"
	"expandd/internal/perf"
	"expandd/internal/scope"
	"expandd/internal/snippet"
	"expandd/internal/synth"
	"expandd/internal/trigger"
	"expandd/internal/variables"
)

var (
	ErrBusy           = errors.New("engine: another expansion is in progress")
	ErrNotRunning     = errors.New("engine: not running")
	ErrAlreadyRunning = errors.New("engine: already running")
)

// Source says what started an expansion.
type Source int

const (
	SourceTrigger Source = iota
	SourceHotkey
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceHotkey:
		return "hotkey"
	case SourceManual:
		return "manual"
	}
	return "trigger"
}

// Expansion describes a finished or abandoned expansion. Err is nil on
// success and ErrCancelled when the form was dismissed.
type Expansion struct {
	SnippetID string
	Shortcut  string
	Text      string
	Source    Source
	Duration  time.Duration
	At        time.Time
	Err       error
}

// Deps are the engine's collaborators. Backend and Repository are required.
type Deps struct {
	Backend    keyboard.Backend
	Repository *snippet.Repository

	// Filter nil allows every application.
	Filter *scope.Filter
	// Pipeline nil uses a default pipeline without clipboard or plugins.
	Pipeline *variables.Pipeline
	// Recorder nil uses an unexported recorder.
	Recorder *perf.Recorder
	// Forms nil uses NoForms.
	Forms FormCollector

	Crashes *logging.CrashRecorder
	Logger  *slog.Logger

	// Sleep paces synthesis; nil means time.Sleep.
	Sleep func(time.Duration)
}

type job struct {
	snippet snippet.Snippet
	erase   int
	source  Source
	done    chan error
}

type binding struct {
	combo keyboard.Combo
	id    string
}

// Engine is the text-expansion engine.
type Engine struct {
	backend  keyboard.Backend
	repo     *snippet.Repository
	filter   *scope.Filter
	pipeline *variables.Pipeline
	rec      *perf.Recorder
	forms    FormCollector
	crashes  *logging.CrashRecorder
	sleep    func(time.Duration)
	log      *slog.Logger

	settings atomic.Pointer[Settings]
	hotkeys  atomic.Pointer[[]binding]

	// Owned by the capture goroutine.
	buf     *trigger.Buffer
	applied *Settings

	busy    atomic.Bool
	running atomic.Bool
	queue   chan job

	mu        sync.Mutex
	listeners []func(Expansion)
	subs      []chan Expansion
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a stopped engine.
func New(deps Deps, settings Settings) (*Engine, error) {
	if deps.Backend == nil {
		return nil, errors.New("engine: backend is required")
	}
	if deps.Repository == nil {
		return nil, errors.New("engine: repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		backend:  deps.Backend,
		repo:     deps.Repository,
		filter:   deps.Filter,
		pipeline: deps.Pipeline,
		rec:      deps.Recorder,
		forms:    deps.Forms,
		crashes:  deps.Crashes,
		sleep:    deps.Sleep,
		log:      logger.With("component", "engine"),
		queue:    make(chan job, 1),
	}
	if e.pipeline == nil {
		e.pipeline = variables.NewPipeline(nil, logger)
	}
	if e.rec == nil {
		rec, err := perf.NewRecorder(perf.Options{Logger: logger})
		if err != nil {
			return nil, err
		}
		e.rec = rec
	}
	if e.forms == nil {
		e.forms = NoForms{}
	}
	s := settings.normalized()
	e.settings.Store(&s)
	e.applied = &s
	e.buf = trigger.NewBuffer(s.Triggers)
	e.hotkeys.Store(&[]binding{})
	if e.filter != nil {
		e.filter.SetRules(s.Rules)
	}
	e.rec.SetSlowThreshold(s.SlowThreshold)
	return e, nil
}

// Recorder returns the latency recorder.
func (e *Engine) Recorder() *perf.Recorder { return e.rec }

// Settings returns the active settings.
func (e *Engine) Settings() Settings { return *e.settings.Load() }

// UpdateSettings swaps the active settings. The trigger buffer picks them up
// on the next key event.
func (e *Engine) UpdateSettings(s Settings) {
	s = s.normalized()
	e.settings.Store(&s)
	if e.filter != nil {
		e.filter.SetRules(s.Rules)
	}
	e.rec.SetSlowThreshold(s.SlowThreshold)
	e.log.Info("settings updated",
		"space", s.Triggers.UseSpace, "tab", s.Triggers.UseTab, "enter", s.Triggers.UseEnter,
		"max_buffer", s.Triggers.MaxLen,
		"whitelist", len(s.Rules.Whitelist), "blacklist", len(s.Rules.Blacklist))
}

// RefreshHotkeys rebuilds the hotkey table from the repository. Snippets
// with unparsable hotkeys are skipped and reported in the joined error.
func (e *Engine) RefreshHotkeys() (int, error) {
	var (
		table []binding
		errs  []error
	)
	for _, s := range e.repo.WithHotkeys() {
		c, err := keyboard.ParseCombo(s.Hotkey)
		if err != nil {
			errs = append(errs, fmt.Errorf("snippet %s: %w", s.Shortcut, err))
			continue
		}
		table = append(table, binding{combo: c, id: s.ID})
	}
	e.hotkeys.Store(&table)
	return len(table), errors.Join(errs...)
}

// OnExpansion registers a listener. Listeners run on their own goroutine.
func (e *Engine) OnExpansion(fn func(Expansion)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Subscribe returns a channel of expansions. Notifications are dropped when
// the channel is full. The channel is closed by Stop.
func (e *Engine) Subscribe(buffer int) <-chan Expansion {
	ch := make(chan Expansion, buffer)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch
}

func (e *Engine) publish(x Expansion) {
	e.mu.Lock()
	listeners := slices.Clone(e.listeners)
	subs := slices.Clone(e.subs)
	e.mu.Unlock()

	for _, fn := range listeners {
		go func(fn func(Expansion)) {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("expansion listener panicked", "panic", r)
				}
			}()
			fn(x)
		}(fn)
	}
	for _, ch := range subs {
		select {
		case ch <- x:
		default:
		}
	}
}

// Start launches the worker and installs the capture handler.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		return ErrAlreadyRunning
	}
	if n, err := e.RefreshHotkeys(); err != nil {
		e.log.Warn("some hotkeys were ignored", "bound", n, "error", err)
	}

	// A handler racing the previous Stop may have left a job behind.
	select {
	case <-e.queue:
	default:
	}
	e.busy.Store(false)
	e.buf.Reset()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go e.worker(ctx, done)

	e.running.Store(true)
	if err := e.backend.Start(ctx, e.handle); err != nil {
		e.running.Store(false)
		cancel()
		<-done
		return fmt.Errorf("engine: start capture: %w", err)
	}
	e.cancel = cancel
	e.done = done
	e.log.Info("engine started", "snippets", e.repo.Len())
	return nil
}

// Stop removes the capture handler and waits for the worker. An expansion
// already typing runs to completion first.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running.Load() {
		e.mu.Unlock()
		return nil
	}
	e.running.Store(false)
	err := e.backend.Stop()
	e.cancel()
	done := e.done
	e.mu.Unlock()
	<-done

	select {
	case j := <-e.queue:
		if j.done != nil {
			j.done <- ErrNotRunning
		}
	default:
	}
	e.busy.Store(false)

	e.mu.Lock()
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
	e.mu.Unlock()
	e.log.Info("engine stopped")
	return err
}

// Running reports whether capture is installed.
func (e *Engine) Running() bool { return e.running.Load() }

// Busy reports whether an expansion is pending or running.
func (e *Engine) Busy() bool { return e.busy.Load() }

// Buffered returns the trigger buffer. It must only be called from the
// goroutine that delivers key events.
func (e *Engine) Buffered() string { return e.buf.String() }

// ExpandNow types a snippet without erasing anything, waiting until it has
// been typed.
func (e *Engine) ExpandNow(ctx context.Context, id string) error {
	s, err := e.repo.Get(id)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	if err := e.enqueue(job{snippet: s, source: SourceManual, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) enqueue(j job) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	select {
	case e.queue <- j:
		return nil
	default:
		e.busy.Store(false)
		return ErrBusy
	}
}

// handle runs on the capture goroutine and must never block or panic.
func (e *Engine) handle(ev keyboard.KeyEvent) (verdict keyboard.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = keyboard.Pass
			e.crash("capture", r, map[string]any{"key": ev.Key.String()})
		}
	}()

	if ev.Injected || e.busy.Load() {
		return keyboard.Pass
	}
	e.syncSettings()

	if ev.Transition == keyboard.Down && !ev.Key.IsModifier() {
		if s, ok := e.matchHotkey(ev); ok {
			e.buf.Reset()
			if !e.allowed(&s) {
				return keyboard.Pass
			}
			if err := e.enqueue(job{snippet: s, source: SourceHotkey}); err != nil {
				e.log.Debug("hotkey expansion dropped", "snippet", s.ID, "error", err)
				return keyboard.Pass
			}
			return keyboard.Suppress
		}
	}

	act := e.buf.Feed(ev)
	if act.Kind != trigger.Trigger {
		return keyboard.Pass
	}
	s, ok := e.repo.Match(act.Snapshot)
	if !ok || !e.allowed(&s) {
		return keyboard.Pass
	}
	j := job{snippet: s, erase: utf8.RuneCountInString(act.Snapshot), source: SourceTrigger}
	if err := e.enqueue(j); err != nil {
		e.log.Debug("expansion dropped", "snippet", s.ID, "error", err)
		return keyboard.Pass
	}
	return keyboard.Suppress
}

func (e *Engine) syncSettings() {
	if s := e.settings.Load(); s != e.applied {
		e.buf.SetSettings(s.Triggers)
		e.applied = s
	}
}

func (e *Engine) allowed(s *snippet.Snippet) bool {
	if e.filter == nil {
		return true
	}
	if !e.filter.Allowed() {
		e.log.Debug("expansion blocked by app rules", "snippet", s.ID)
		return false
	}
	if !e.filter.SnippetAllowed(s) {
		e.log.Debug("expansion blocked by snippet app rules", "snippet", s.ID)
		return false
	}
	return true
}

func (e *Engine) matchHotkey(ev keyboard.KeyEvent) (snippet.Snippet, bool) {
	for _, b := range *e.hotkeys.Load() {
		if !b.combo.Matches(ev) {
			continue
		}
		s, err := e.repo.Get(b.id)
		if err != nil || !s.Enabled {
			return snippet.Snippet{}, false
		}
		return s, true
	}
	return snippet.Snippet{}, false
}

func (e *Engine) worker(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.queue:
			err := e.expand(ctx, j)
			if j.done != nil {
				j.done <- err
			}
		}
	}
}

// expand runs one expansion on the worker. The shortcut is erased only
// after the form, if any, has been filled in.
func (e *Engine) expand(ctx context.Context, j job) (err error) {
	s := j.snippet
	var (
		text  string
		timer *perf.Timer
	)
	defer func() {
		if r := recover(); r != nil {
			e.crash("worker", r, map[string]any{"snippet": s.ID})
			err = fmt.Errorf("engine: expansion of %s panicked: %v", s.ID, r)
		}
		var d time.Duration
		if timer != nil {
			d = timer.Stop()
		}
		switch {
		case err == nil:
			e.rec.Succeeded()
			e.log.Debug("expanded", "snippet", s.ID, "source", j.source, "elapsed", d)
		case errors.Is(err, ErrCancelled):
			e.log.Info("expansion cancelled", "snippet", s.ID)
		default:
			e.rec.Failed()
			e.log.Error("expansion failed", "snippet", s.ID, "error", err)
		}
		// Idle before anyone hears about it.
		e.busy.Store(false)
		e.publish(Expansion{
			SnippetID: s.ID,
			Shortcut:  s.Shortcut,
			Text:      text,
			Source:    j.source,
			Duration:  d,
			At:        time.Now(),
			Err:       err,
		})
	}()

	// Time spent in a form is the user's, not the expansion's.
	var values map[string]string
	if s.HasForm() {
		ft := e.rec.Start(perf.OpForm)
		v, ok := e.forms.Collect(ctx, s)
		ft.Stop()
		if !ok {
			return ErrCancelled
		}
		if err := validateForm(s, v); err != nil {
			return err
		}
		values = v
	}

	timer = e.rec.Start(perf.OpExpansion)
	rt := e.rec.Start(perf.OpRender)
	text = e.pipeline.Render(s.Text, s.ID, fieldNames(s)...)
	text = variables.FillFields(text, values)
	rt.Stop()

	set := e.settings.Load()
	sy := &synth.Synthesizer{
		Backend:        e.backend,
		KeystrokeDelay: set.KeystrokeDelay,
		BackspaceDelay: set.BackspaceDelay,
		Sleep:          e.sleep,
	}
	st := e.rec.Start(perf.OpSynth)
	if err := sy.Erase(j.erase); err != nil {
		return err
	}
	res, err := sy.Type(text)
	st.Stop()
	if err != nil {
		return err
	}
	if res.Skipped > 0 {
		e.log.Warn("characters without a key were skipped", "snippet", s.ID, "skipped", res.Skipped)
	}

	if err := e.repo.RecordUsage(s.ID); err != nil {
		e.log.Warn("recording usage failed", "snippet", s.ID, "error", err)
	}
	return nil
}

func (e *Engine) crash(component string, v any, ctx map[string]any) {
	e.log.Error("recovered panic", "where", component, "panic", v)
	if e.crashes == nil {
		return
	}
	if rep, err := e.crashes.Record(component, v, ctx); err != nil {
		e.log.Warn("writing crash report failed", "error", err)
	} else {
		e.log.Info("crash report written", "component", rep.Component, "at", rep.Timestamp)
	}
}
