//go:build linux

package scope

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// NewPlatformResolver returns a Poller over the X11 active window. Under
// pure Wayland no probe works and every lookup fails, which allows.
func NewPlatformResolver(interval time.Duration) *Poller {
	return NewPoller(probeX11, interval)
}

// Available reports whether foreground resolution can work here.
func Available() (bool, string) {
	if os.Getenv("DISPLAY") == "" {
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return false, "Wayland session without XWayland; app filters are ignored"
		}
		return false, "no display server; app filters are ignored"
	}
	if _, err := exec.LookPath("xdotool"); err == nil {
		return true, "X11 via xdotool"
	}
	if _, err := exec.LookPath("xprop"); err == nil {
		return true, "X11 via xprop"
	}
	return false, "xdotool or xprop not found; app filters are ignored"
}

func probeX11(ctx context.Context) (Process, error) {
	if os.Getenv("DISPLAY") == "" {
		return Process{}, ErrNoForeground
	}
	pid, err := activePIDXdotool(ctx)
	if err != nil {
		pid, err = activePIDXprop(ctx)
	}
	if err != nil {
		return Process{}, err
	}
	return procInfo(pid)
}

func activePIDXdotool(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowpid").Output()
	if err != nil {
		return 0, fmt.Errorf("scope: xdotool: %w", err)
	}
	return strconv.Atoi(strings.TrimSpace(string(out)))
}

func activePIDXprop(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW").Output()
	if err != nil {
		return 0, fmt.Errorf("scope: xprop: %w", err)
	}
	// "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007"
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, ErrNoForeground
	}
	win := fields[len(fields)-1]
	if win == "0x0" {
		return 0, ErrNoForeground
	}
	out, err = exec.CommandContext(ctx, "xprop", "-id", win, "_NET_WM_PID").Output()
	if err != nil {
		return 0, fmt.Errorf("scope: xprop: %w", err)
	}
	// "_NET_WM_PID(CARDINAL) = 12345"
	_, v, ok := strings.Cut(string(out), "=")
	if !ok {
		return 0, errors.New("scope: window has no _NET_WM_PID")
	}
	return strconv.Atoi(strings.TrimSpace(v))
}

func procInfo(pid int) (Process, error) {
	if pid <= 0 {
		return Process{}, ErrNoForeground
	}
	p := Process{PID: pid}
	if exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		p.ExePath = exe
		p.Name = processName(exe)
	}
	if comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid)); err == nil {
		p.Name = strings.TrimSpace(string(comm))
	}
	if p.Name == "" {
		return Process{}, fmt.Errorf("scope: process %d: %w", pid, ErrNoForeground)
	}
	return p, nil
}
