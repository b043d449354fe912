package engine

import (
	"context"
	"errors"

	"expandd/internal/snippet"
)

// ErrCancelled is reported when form collection is cancelled.
var ErrCancelled = errors.New("engine: form cancelled")

// FormCollector asks the user for form-field values. ok=false means the
// user cancelled and the expansion must be abandoned.
type FormCollector interface {
	Collect(ctx context.Context, s snippet.Snippet) (map[string]string, bool)
}

// FormFunc adapts a function to FormCollector.
type FormFunc func(ctx context.Context, s snippet.Snippet) (map[string]string, bool)

func (f FormFunc) Collect(ctx context.Context, s snippet.Snippet) (map[string]string, bool) {
	return f(ctx, s)
}

// NoForms fills every field with its default and cancels when a required
// field has none. It is used when no dialog is available.
type NoForms struct{}

func (NoForms) Collect(_ context.Context, s snippet.Snippet) (map[string]string, bool) {
	values := make(map[string]string, len(s.FormFields))
	for _, f := range s.FormFields {
		if f.Required && f.Default == "" {
			return nil, false
		}
		values[f.Name] = f.Default
	}
	return values, true
}

func validateForm(s snippet.Snippet, values map[string]string) error {
	var errs []error
	for _, f := range s.FormFields {
		if err := f.Validate(values[f.Name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func fieldNames(s snippet.Snippet) []string {
	names := make([]string, len(s.FormFields))
	for i, f := range s.FormFields {
		names[i] = f.Name
	}
	return names
}
