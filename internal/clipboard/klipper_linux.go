//go:build linux

package clipboard

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	klipperService   = "org.kde.klipper"
	klipperPath      = dbus.ObjectPath("/klipper")
	klipperInterface = "org.kde.klipper.klipper"
)

// Klipper talks to the KDE clipboard manager over the session bus.
type Klipper struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewKlipper connects to Klipper, failing when it is not running.
func NewKlipper() (*Klipper, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: session bus: %v", ErrUnavailable, err)
	}
	var has bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, klipperService).Store(&has); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: klipper not running", ErrUnavailable)
	}
	return &Klipper{conn: conn, obj: conn.Object(klipperService, klipperPath)}, nil
}

func (k *Klipper) ReadText() (string, error) {
	var text string
	if err := k.obj.Call(klipperInterface+".getClipboardContents", 0).Store(&text); err != nil {
		return "", fmt.Errorf("clipboard: klipper: %w", err)
	}
	return text, nil
}

// History returns up to n entries from Klipper's own history.
func (k *Klipper) History(n int) ([]string, error) {
	var items []string
	if err := k.obj.Call(klipperInterface+".getClipboardHistoryMenu", 0).Store(&items); err != nil {
		return nil, fmt.Errorf("clipboard: klipper history: %w", err)
	}
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	return items, nil
}
