//go:build linux

package keyboard

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux capture grabs every keyboard evdev device exclusively and re-emits
// the events it does not suppress through a uinput virtual keyboard. The
// same virtual device carries synthesized strokes, so the daemon never reads
// its own output.

const (
	evSyn = 0x00
	evKey = 0x01
	evRep = 0x14

	synReport = 0

	keyRelease = 0
	keyPress   = 1

	inputEventSize = 24

	// ioctl requests from linux/input.h and linux/uinput.h.
	eviocgrab    = 0x40044590
	uiSetEvbit   = 0x40045564
	uiSetKeybit  = 0x40045565
	uiDevSetup   = 0x405c5503
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	virtualName = "expandd virtual keyboard"
)

type uinputSetup struct {
	Bustype      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	Name         [80]byte
	FFEffectsMax uint32
}

type linuxBackend struct {
	mu      sync.Mutex
	running bool
	devices []*os.File
	out     *os.File
	outMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *slog.Logger
}

func newPlatformBackend() Backend {
	return &linuxBackend{log: slog.Default().With("component", "keyboard")}
}

// Available checks that keyboards are readable and uinput is writable.
func (l *linuxBackend) Available() (bool, string) {
	devices, err := findKeyboardDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot enumerate input devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}
	readable := ""
	for _, dev := range devices {
		if f, err := os.OpenFile(dev, os.O_RDONLY, 0); err == nil {
			f.Close()
			readable = dev
			break
		}
	}
	if readable == "" {
		return false, "cannot read keyboard devices (need to be in the 'input' group or run as root)"
	}
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY, 0)
	if err != nil {
		return false, fmt.Sprintf("cannot open /dev/uinput: %v", err)
	}
	f.Close()
	return true, fmt.Sprintf("keyboard %s, uinput available", readable)
}

// findKeyboardDevices lists /dev/input event nodes whose handlers include
// "kbd" and which report a full key bitmap, skipping our own virtual device.
func findKeyboardDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		devices []string
		name    string
		handler string
		isKbd   bool
		seen    = map[string]bool{}
	)
	flush := func() {
		if isKbd && handler != "" && !strings.Contains(name, virtualName) && !seen[handler] {
			devices = append(devices, handler)
			seen[handler] = true
		}
		name, handler, isKbd = "", "", false
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "N: Name="):
			name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "H: Handlers="):
			fields := strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
			hasKbd := false
			for _, p := range fields {
				if p == "kbd" {
					hasKbd = true
				}
				if strings.HasPrefix(p, "event") {
					handler = "/dev/input/" + p
				}
			}
			if !hasKbd {
				handler = ""
			}
		case strings.HasPrefix(line, "B: EV="):
			// Auto-repeat (EV_REP) separates keyboards from power buttons
			// and similar key-only devices.
			bits, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "B: EV=")), 16, 64)
			isKbd = err == nil && bits&(1<<evKey) != 0 && bits&(1<<evRep) != 0
		case line == "":
			flush()
		}
	}
	flush()

	if len(devices) == 0 {
		matches, _ := filepath.Glob("/dev/input/by-id/*-event-kbd")
		for _, m := range matches {
			if target, err := filepath.EvalSymlinks(m); err == nil && !seen[target] {
				devices = append(devices, target)
				seen[target] = true
			}
		}
	}
	return devices, sc.Err()
}

// Start grabs the keyboards and begins dispatching events to h.
func (l *linuxBackend) Start(ctx context.Context, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyRunning
	}

	paths, err := findKeyboardDevices()
	if err != nil || len(paths) == 0 {
		return ErrNotAvailable
	}

	out, err := createVirtualKeyboard()
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return ErrPermissionDenied
		}
		return fmt.Errorf("keyboard: create uinput device: %w", err)
	}
	// Give the compositor a moment to pick up the new device before keys
	// start flowing through it.
	time.Sleep(200 * time.Millisecond)

	var devices []*os.File
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			l.log.Warn("skipping keyboard", "device", p, "error", err)
			continue
		}
		if err := unix.IoctlSetInt(int(f.Fd()), eviocgrab, 1); err != nil {
			l.log.Warn("cannot grab keyboard", "device", p, "error", err)
			f.Close()
			continue
		}
		devices = append(devices, f)
	}
	if len(devices) == 0 {
		destroyVirtualKeyboard(out)
		return ErrPermissionDenied
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.devices = devices
	l.out = out
	l.running = true

	d := newDispatcher(h)
	for i, f := range devices {
		l.wg.Add(1)
		go l.readLoop(ctx, i, f, d)
	}
	go func() {
		<-ctx.Done()
		l.Stop()
	}()
	l.log.Info("keyboard capture started", "devices", len(devices))
	return nil
}

func (l *linuxBackend) readLoop(ctx context.Context, source int, f *os.File, d *dispatcher) {
	defer l.wg.Done()
	buf := make([]byte, inputEventSize)
	for {
		if _, err := readFull(f, buf); err != nil {
			if ctx.Err() == nil {
				l.log.Warn("keyboard read failed", "device", f.Name(), "error", err)
			}
			return
		}
		typ := binary.LittleEndian.Uint16(buf[16:18])
		code := binary.LittleEndian.Uint16(buf[18:20])
		value := int32(binary.LittleEndian.Uint32(buf[20:24]))

		if typ != evKey {
			continue
		}
		key, known := evdevKeys[code]
		verdict := Pass
		if known {
			t := Down
			if value == keyRelease {
				t = Up
			}
			verdict = d.dispatch(source, key, t, time.Now())
		}
		if verdict == Pass {
			if err := l.emit(code, value); err != nil && ctx.Err() == nil {
				l.log.Warn("forward key failed", "error", err)
			}
		}
	}
}

func readFull(f *os.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := f.Read(buf[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

// emit writes one key event and a sync report to the virtual keyboard.
func (l *linuxBackend) emit(code uint16, value int32) error {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	if l.out == nil {
		return ErrNotRunning
	}
	var buf [2 * inputEventSize]byte
	encodeEvent(buf[:inputEventSize], evKey, code, value)
	encodeEvent(buf[inputEventSize:], evSyn, synReport, 0)
	_, err := l.out.Write(buf[:])
	return err
}

func encodeEvent(b []byte, typ, code uint16, value int32) {
	// Zero timestamp: the kernel stamps uinput events on arrival.
	for i := 0; i < 16; i++ {
		b[i] = 0
	}
	binary.LittleEndian.PutUint16(b[16:18], typ)
	binary.LittleEndian.PutUint16(b[18:20], code)
	binary.LittleEndian.PutUint32(b[20:24], uint32(value))
}

// Synthesize writes strokes through the virtual keyboard.
func (l *linuxBackend) Synthesize(strokes []Stroke) error {
	for _, s := range strokes {
		code, ok := vkToEvdev[s.Key]
		if !ok {
			return fmt.Errorf("keyboard: no evdev code for %s", s.Key)
		}
		value := int32(keyPress)
		if s.Transition == Up {
			value = keyRelease
		}
		if err := l.emit(code, value); err != nil {
			return err
		}
	}
	return nil
}

// Stop releases the grabs and destroys the virtual keyboard.
func (l *linuxBackend) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	l.cancel()
	for _, f := range l.devices {
		_ = unix.IoctlSetInt(int(f.Fd()), eviocgrab, 0)
		f.Close()
	}
	l.devices = nil
	l.mu.Unlock()

	l.wg.Wait()

	l.outMu.Lock()
	destroyVirtualKeyboard(l.out)
	l.out = nil
	l.outMu.Unlock()
	return nil
}

func createVirtualKeyboard() (*os.File, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())
	fail := func(err error) (*os.File, error) {
		f.Close()
		return nil, err
	}

	if err := unix.IoctlSetInt(fd, uiSetEvbit, evKey); err != nil {
		return fail(fmt.Errorf("UI_SET_EVBIT: %w", err))
	}
	if err := unix.IoctlSetInt(fd, uiSetEvbit, evSyn); err != nil {
		return fail(fmt.Errorf("UI_SET_EVBIT: %w", err))
	}
	for code := 1; code < 256; code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeybit, code); err != nil {
			return fail(fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err))
		}
	}

	setup := uinputSetup{Bustype: 0x03, Vendor: 0x1209, Product: 0xe4d0, Version: 1}
	copy(setup.Name[:], virtualName)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevSetup, uintptr(unsafe.Pointer(&setup))); errno != 0 {
		return fail(fmt.Errorf("UI_DEV_SETUP: %w", errno))
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fail(fmt.Errorf("UI_DEV_CREATE: %w", err))
	}
	return f, nil
}

func destroyVirtualKeyboard(f *os.File) {
	if f == nil {
		return
	}
	_ = unix.IoctlSetInt(int(f.Fd()), uiDevDestroy, 0)
	f.Close()
}
