//go:build windows

package scope

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/windows"
)

// NewPlatformResolver returns a Poller over GetForegroundWindow. The probe
// is cheap, but the capture hook still reads only the cached value.
func NewPlatformResolver(interval time.Duration) *Poller {
	return NewPoller(foreground, interval)
}

// Available always succeeds on Windows.
func Available() (bool, string) {
	return true, "GetForegroundWindow"
}

func foreground(context.Context) (Process, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return Process{}, ErrNoForeground
	}
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil || pid == 0 {
		return Process{}, ErrNoForeground
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return Process{}, fmt.Errorf("scope: open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return Process{}, fmt.Errorf("scope: image name %d: %w", pid, err)
	}
	exe := windows.UTF16ToString(buf[:size])
	return Process{PID: int(pid), Name: processName(exe), ExePath: exe}, nil
}
