//go:build !linux

package clipboard

// Klipper exists only on Linux.
type Klipper struct{}

func NewKlipper() (*Klipper, error) { return nil, ErrUnavailable }

func (*Klipper) ReadText() (string, error) { return "", ErrUnavailable }

func (*Klipper) History(int) ([]string, error) { return nil, ErrUnavailable }
