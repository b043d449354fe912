// Package plugin resolves template tags that no built-in variable handles.
package plugin

import (
	"strings"
)

// Resolver maps a variable name and its parameters to text.
type Resolver interface {
	Resolve(name string, params map[string]string) (string, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string, params map[string]string) (string, bool)

func (f ResolverFunc) Resolve(name string, params map[string]string) (string, bool) {
	return f(name, params)
}

// Chain asks each resolver in turn; the first hit wins.
type Chain []Resolver

func (c Chain) Resolve(name string, params map[string]string) (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if v, ok := r.Resolve(name, params); ok {
			return v, true
		}
	}
	return "", false
}

// Static resolves fixed names, for configuration-defined variables.
type Static map[string]string

func (s Static) Resolve(name string, _ map[string]string) (string, bool) {
	v, ok := s[name]
	return v, ok
}

// ParseParams turns a tag argument into parameters. The whole argument is
// always available as "arg"; "k=v" pairs separated by "," or ";" are added
// as their own keys.
func ParseParams(arg string) map[string]string {
	params := make(map[string]string)
	if arg == "" {
		return params
	}
	params["arg"] = arg
	for _, part := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ';' }) {
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" || k == "arg" {
			continue
		}
		params[k] = strings.TrimSpace(v)
	}
	return params
}
