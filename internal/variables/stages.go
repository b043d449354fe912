package variables

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"expandd/internal/plugin"
)

// Stage renders one family of tags.
type Stage interface {
	Name() string
	// Match reports whether the stage owns tag.
	Match(tag Tag) bool
	// Render returns the replacement for tag. ok=false leaves the tag in
	// place for later stages.
	Render(tag Tag, env *Env) (string, bool)
}

type dateStage struct {
	name   string
	layout string
}

func (s dateStage) Name() string       { return s.name }
func (s dateStage) Match(tag Tag) bool { return tag.Name == s.name }

func (s dateStage) Render(tag Tag, env *Env) (string, bool) {
	format := s.layout
	if tag.HasArg && tag.Arg != "" {
		format = tag.Arg
	}
	return FormatTime(env.Now, format), true
}

type usernameStage struct{}

func (usernameStage) Name() string       { return "username" }
func (usernameStage) Match(tag Tag) bool { return tag.Name == "username" && !tag.HasArg }

func (usernameStage) Render(_ Tag, env *Env) (string, bool) {
	if env.username == nil {
		return "", true
	}
	return env.username(), true
}

type clipboardStage struct{}

func (clipboardStage) Name() string       { return "clipboard" }
func (clipboardStage) Match(tag Tag) bool { return tag.Name == "clipboard" && !tag.HasArg }

func (clipboardStage) Render(_ Tag, env *Env) (string, bool) {
	if env.clipboard == nil {
		return "", true
	}
	text, ok := env.clipboard.CurrentText()
	if !ok {
		return "", true
	}
	return text, true
}

type clipboardHistoryStage struct{}

func (clipboardHistoryStage) Name() string { return "clipboard_history" }
func (clipboardHistoryStage) Match(tag Tag) bool {
	return tag.Name == "clipboard_history" && tag.HasArg
}

func (clipboardHistoryStage) Render(tag Tag, env *Env) (string, bool) {
	n, err := strconv.Atoi(tag.Arg)
	if err != nil || n < 0 {
		return "", false
	}
	if n == 0 || env.clipboard == nil {
		return "", true
	}
	history := env.clipboard.RecentHistory(n)
	if n > len(history) {
		return "", true
	}
	return history[n-1], true
}

var rangePattern = regexp.MustCompile(`^\s*(-?\d+)\s*-\s*(-?\d+)\s*$`)

type randomStage struct{}

func (randomStage) Name() string       { return "random" }
func (randomStage) Match(tag Tag) bool { return tag.Name == "random" }

func (randomStage) Render(tag Tag, env *Env) (string, bool) {
	lo, hi := 0, 100
	if tag.HasArg {
		m := rangePattern.FindStringSubmatch(tag.Arg)
		if m == nil {
			return "", false
		}
		var err1, err2 error
		lo, err1 = strconv.Atoi(m[1])
		hi, err2 = strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return "", false
		}
		if lo > hi {
			lo, hi = hi, lo
		}
	}
	return strconv.Itoa(env.ctx.intRange(lo, hi)), true
}

type uuidStage struct{}

func (uuidStage) Name() string       { return "uuid" }
func (uuidStage) Match(tag Tag) bool { return tag.Name == "uuid" && !tag.HasArg }

func (uuidStage) Render(Tag, *Env) (string, bool) { return uuid.NewString(), true }

// countStage advances the snippet counter once per render, so every {count}
// in one template shows the same value. Named counters advance on every
// occurrence, so "{count:n}, {count:n}" numbers two items.
type countStage struct{}

func (countStage) Name() string       { return "count" }
func (countStage) Match(tag Tag) bool { return tag.Name == "count" }

func (countStage) Render(tag Tag, env *Env) (string, bool) {
	name := strings.TrimSpace(tag.Arg)
	if tag.HasArg && name == "" {
		return "", false
	}
	if name != "" {
		return strconv.Itoa(env.ctx.next(env.SnippetID, name)), true
	}
	if env.SnippetID == "" {
		return "", false
	}
	if v, ok := env.counts[env.SnippetID]; ok {
		return strconv.Itoa(v), true
	}
	v := env.ctx.next(env.SnippetID, "")
	env.counts[env.SnippetID] = v
	return strconv.Itoa(v), true
}

type ifStage struct{}

func (ifStage) Name() string       { return "if" }
func (ifStage) Match(tag Tag) bool { return tag.Name == "if" && tag.HasArg }

func (ifStage) Render(tag Tag, _ *Env) (string, bool) {
	parts := strings.SplitN(tag.Arg, ":", 3)
	if len(parts) != 3 {
		return "", false
	}
	if Truthy(parts[0]) {
		return parts[1], true
	}
	return parts[2], true
}

// Truthy reports whether an {if} condition holds: anything except empty,
// whitespace, "false" in any case, or "0".
func Truthy(cond string) bool {
	c := strings.TrimSpace(cond)
	return c != "" && !strings.EqualFold(c, "false") && c != "0"
}

type repeatStage struct{}

func (repeatStage) Name() string       { return "repeat" }
func (repeatStage) Match(tag Tag) bool { return tag.Name == "repeat" && tag.HasArg }

func (repeatStage) Render(tag Tag, _ *Env) (string, bool) {
	i := strings.LastIndexByte(tag.Arg, ':')
	if i < 0 {
		return "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(tag.Arg[i+1:]))
	if err != nil || n < 0 || n > maxRepeat {
		return "", false
	}
	return strings.Repeat(tag.Arg[:i], n), true
}

const maxRepeat = 10000

// pluginStage offers every remaining tag to the plugin resolver once.
type pluginStage struct{}

func (pluginStage) Name() string       { return "plugin" }
func (pluginStage) Match(tag Tag) bool { return !strings.EqualFold(tag.Name, "cursor") }

func (pluginStage) Render(tag Tag, env *Env) (string, bool) {
	if env.plugins == nil || env.reserved[tag.Name] {
		return "", false
	}
	return env.plugins.Resolve(tag.Name, plugin.ParseParams(tag.Arg))
}

// DefaultStages returns the built-in stages in their fixed order.
func DefaultStages() []Stage {
	return []Stage{
		dateStage{name: "date", layout: DefaultDateFormat},
		dateStage{name: "time", layout: DefaultTimeFormat},
		dateStage{name: "datetime", layout: DefaultDateTimeFormat},
		usernameStage{},
		clipboardStage{},
		clipboardHistoryStage{},
		randomStage{},
		uuidStage{},
		countStage{},
		ifStage{},
		repeatStage{},
		pluginStage{},
	}
}
