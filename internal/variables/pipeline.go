// Package variables renders the dynamic tags in snippet templates.
//
// Tags are written {name} or {name:argument}. A Pipeline runs a fixed list
// of stages; each stage makes one pass over the text and replaces the tags
// it owns. Later stages see the output of earlier ones and earlier stages
// never run again, so the text a stage produces can still be rewritten by a
// stage further down the list. Nested tags such as {repeat:{date}:2} have no
// defined meaning beyond what this ordering happens to produce.
//
// {cursor} is left untouched for the synthesizer.
package variables

import (
	"log/slog"
	"strings"
	"time"

	"expandd/internal/plugin"
)

// Env is the per-render view handed to stages.
type Env struct {
	SnippetID string
	Now       time.Time

	ctx       *Context
	username  func() string
	clipboard ClipboardSource
	plugins   plugin.Resolver
	reserved  map[string]bool
	counts    map[string]int
}

// Pipeline applies stages in order.
type Pipeline struct {
	ctx    *Context
	stages []Stage
	log    *slog.Logger
}

// NewPipeline builds a pipeline over ctx. No stages means DefaultStages.
func NewPipeline(ctx *Context, logger *slog.Logger, stages ...Stage) *Pipeline {
	if ctx == nil {
		ctx = NewContext(nil, nil)
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{ctx: ctx, stages: stages, log: logger.With("component", "variables")}
}

// Context returns the shared substitution context.
func (p *Pipeline) Context() *Context { return p.ctx }

// Stages lists stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Render substitutes every known tag in text. snippetID keys the {count}
// counter. Tags named in reserved are never offered to plugins; the caller
// fills them in afterwards (form fields).
func (p *Pipeline) Render(text, snippetID string, reserved ...string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	now, username, clip, plugins := p.ctx.snapshot()
	env := &Env{
		SnippetID: snippetID,
		Now:       now,
		ctx:       p.ctx,
		username:  username,
		clipboard: clip,
		plugins:   plugins,
		counts:    make(map[string]int),
	}
	if len(reserved) > 0 {
		env.reserved = make(map[string]bool, len(reserved))
		for _, r := range reserved {
			env.reserved[r] = true
		}
	}

	for _, st := range p.stages {
		text = replaceTags(text, func(tag Tag) (out string, ok bool) {
			if !st.Match(tag) {
				return "", false
			}
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("variable stage panicked", "stage", st.Name(), "tag", tag.Name, "panic", r)
					out, ok = "", false
				}
			}()
			return st.Render(tag, env)
		})
	}
	return text
}
