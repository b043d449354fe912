// Package snippet holds expansion rules and the thread-safe repository the
// engine reads on the capture path while the CLI and other callers mutate it.
package snippet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("snippet: not found")
	ErrDuplicateShortcut = errors.New("snippet: duplicate shortcut")
	ErrInvalid           = errors.New("snippet: invalid")
)

// PersistError reports that a mutation was applied in memory but could not
// be written to durable storage.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("snippet: %s saved to memory, not to disk: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Statistics tracks how often a snippet was expanded.
type Statistics struct {
	UseCount  int       `json:"use_count"`
	FirstUsed time.Time `json:"first_used,omitempty"`
	LastUsed  time.Time `json:"last_used,omitempty"`
}

// FormField describes a value collected from the user before expansion.
// The field's {Name} placeholder in the text is replaced with the value.
type FormField struct {
	Name        string `json:"name" yaml:"name"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Pattern     string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Validate checks value against the field's requirements.
func (f FormField) Validate(value string) error {
	if f.Required && strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: field %q is required", ErrInvalid, f.Name)
	}
	if f.Pattern == "" || value == "" {
		return nil
	}
	re, err := regexp.Compile(f.Pattern)
	if err != nil {
		return fmt.Errorf("%w: field %q pattern: %v", ErrInvalid, f.Name, err)
	}
	if !re.MatchString(value) {
		msg := f.Message
		if msg == "" {
			msg = "value does not match " + f.Pattern
		}
		return fmt.Errorf("%w: field %q: %s", ErrInvalid, f.Name, msg)
	}
	return nil
}

// Snippet maps a shortcut to an expansion template.
type Snippet struct {
	ID            string      `json:"id"`
	Shortcut      string      `json:"shortcut"`
	Text          string      `json:"text"`
	Description   string      `json:"description,omitempty"`
	Categories    []string    `json:"categories,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	Favorite      bool        `json:"favorite,omitempty"`
	CaseSensitive bool        `json:"case_sensitive,omitempty"`
	UseRegex      bool        `json:"use_regex,omitempty"`
	Sensitive     bool        `json:"sensitive,omitempty"`
	FormFields    []FormField `json:"form_fields,omitempty"`
	AllowedApps   []string    `json:"allowed_apps,omitempty"`
	BlockedApps   []string    `json:"blocked_apps,omitempty"`
	Hotkey        string      `json:"hotkey,omitempty"`
	Enabled       bool        `json:"enabled"`
	Stats         Statistics  `json:"stats"`
	Created       time.Time   `json:"created"`
	Modified      time.Time   `json:"modified"`
	LastUsed      time.Time   `json:"last_used,omitempty"`
}

// Validate reports structural problems that would make the snippet unusable.
func (s *Snippet) Validate() error {
	if strings.TrimSpace(s.Shortcut) == "" {
		return fmt.Errorf("%w: empty shortcut", ErrInvalid)
	}
	if strings.ContainsAny(s.Shortcut, " \t\r\n") {
		return fmt.Errorf("%w: shortcut %q contains whitespace", ErrInvalid, s.Shortcut)
	}
	if s.UseRegex {
		if _, err := regexp.Compile(s.Shortcut); err != nil {
			return fmt.Errorf("%w: shortcut pattern: %v", ErrInvalid, err)
		}
	}
	seen := make(map[string]bool, len(s.FormFields))
	for _, f := range s.FormFields {
		if f.Name == "" {
			return fmt.Errorf("%w: form field without name", ErrInvalid)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate form field %q", ErrInvalid, f.Name)
		}
		seen[f.Name] = true
		if f.Pattern != "" {
			if _, err := regexp.Compile(f.Pattern); err != nil {
				return fmt.Errorf("%w: field %q pattern: %v", ErrInvalid, f.Name, err)
			}
		}
	}
	return nil
}

// Matches reports whether buffer triggers this snippet.
func (s *Snippet) Matches(buffer string) bool {
	if s.CaseSensitive {
		return s.Shortcut == buffer
	}
	return strings.EqualFold(s.Shortcut, buffer)
}

// HasForm reports whether expansion needs user input first.
func (s *Snippet) HasForm() bool { return len(s.FormFields) > 0 }

// Clone returns a deep copy.
func (s Snippet) Clone() Snippet {
	s.Categories = cloneStrings(s.Categories)
	s.Tags = cloneStrings(s.Tags)
	s.AllowedApps = cloneStrings(s.AllowedApps)
	s.BlockedApps = cloneStrings(s.BlockedApps)
	if s.FormFields != nil {
		s.FormFields = append([]FormField(nil), s.FormFields...)
	}
	return s
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}
