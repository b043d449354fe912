package variables

import (
	"regexp"
	"strings"
)

// Tag is one {name} or {name:arg} occurrence in a template.
type Tag struct {
	Name   string
	Arg    string
	HasArg bool
	Raw    string
}

var tagPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::([^{}]*))?\}`)

// ParseTags returns every tag in text, in order.
func ParseTags(text string) []Tag {
	var tags []Tag
	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		tags = append(tags, tagAt(text, m))
	}
	return tags
}

func tagAt(text string, m []int) Tag {
	t := Tag{Raw: text[m[0]:m[1]], Name: text[m[2]:m[3]]}
	if m[4] >= 0 {
		t.Arg = text[m[4]:m[5]]
		t.HasArg = true
	}
	return t
}

// replaceTags runs one pass over text, replacing each tag for which fn
// reports ok. Replacement output is not rescanned.
func replaceTags(text string, fn func(Tag) (string, bool)) string {
	if !strings.Contains(text, "{") {
		return text
	}
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		out, ok := fn(tagAt(text, m))
		if !ok {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(out)
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
