// Package clipboard reads the system clipboard and keeps a short history of
// distinct text entries for the {clipboard} and {clipboard_history:N}
// variables.
package clipboard

import (
	"errors"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrUnavailable is returned when no clipboard utility or service can be
// reached.
var ErrUnavailable = errors.New("clipboard: not available")

// Accessor is the platform clipboard.
type Accessor interface {
	// ReadText returns the current text content.
	ReadText() (string, error)
}

// HistorySource is implemented by accessors that keep their own history
// (Klipper on KDE). Entries are most recent first.
type HistorySource interface {
	History(n int) ([]string, error)
}

// System reads the clipboard through xclip/xsel/wl-paste on Linux and the
// native API on Windows and macOS.
type System struct{}

// NewSystem returns the system accessor.
func NewSystem() System { return System{} }

func (System) ReadText() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnavailable
	}
	return clipboard.ReadAll()
}

// Available reports whether the system clipboard can be read.
func (System) Available() bool { return !clipboard.Unsupported }

// New picks an accessor for source: "system", "klipper" or "auto" (Klipper
// when the session bus offers it, the system clipboard otherwise).
func New(source string) (Accessor, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", "auto":
		if k, err := NewKlipper(); err == nil {
			return k, nil
		}
		return NewSystem(), nil
	case "system":
		return NewSystem(), nil
	case "klipper":
		k, err := NewKlipper()
		if err != nil {
			return nil, err
		}
		return k, nil
	}
	return nil, errors.New("clipboard: unknown source " + source)
}
