//go:build windows

package keyboard

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetKeyState         = user32.NewProc("GetKeyState")
	procSendInput           = user32.NewProc("SendInput")
)

const (
	whKeyboardLL = 13

	wmQuit       = 0x0012
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	llkhfInjected = 0x10

	inputKeyboard  = 1
	keyeventfKeyUp = 0x0002

	// injectionTag marks input sent by this process in dwExtraInfo.
	injectionTag = 0x45585044
)

type kbdllhookstruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type keybdInput struct {
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// input mirrors INPUT for the keyboard case. The trailing pad covers the
// larger MOUSEINPUT member of the union.
type input struct {
	Type uint32
	Ki   keybdInput
	_    [8]byte
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// windowsBackend installs a WH_KEYBOARD_LL hook on a dedicated OS thread
// running a message loop, and injects input with SendInput.
type windowsBackend struct {
	mu       sync.Mutex
	running  bool
	threadID uint32
	hook     uintptr
	handler  Handler
	// The hook thread has no focused window, so its GetKeyState view is
	// stale; modifiers are tracked from the hooked stream instead.
	mods     modTracker
	done     chan struct{}
	log      *slog.Logger
}

// The hook procedure is a process-wide callback; only one backend can own it.
var (
	activeMu  sync.RWMutex
	active    *windowsBackend
	hookProcC = windows.NewCallback(lowLevelKeyboardProc)
)

func newPlatformBackend() Backend {
	return &windowsBackend{log: slog.Default().With("component", "keyboard")}
}

func (w *windowsBackend) Available() (bool, string) {
	if err := user32.Load(); err != nil {
		return false, fmt.Sprintf("user32.dll unavailable: %v", err)
	}
	return true, "low-level keyboard hook"
}

func (w *windowsBackend) Start(ctx context.Context, h Handler) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.handler = h
	w.done = make(chan struct{})
	w.mods.seedCapsLock(capsLockOn())
	w.mu.Unlock()

	ready := make(chan error, 1)
	go w.messageLoop(ready)
	if err := <-ready; err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.done:
		}
	}()
	w.log.Info("keyboard hook installed")
	return nil
}

func (w *windowsBackend) messageLoop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	activeMu.Lock()
	active = w
	activeMu.Unlock()

	hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, hookProcC, 0, 0)
	if hook == 0 {
		activeMu.Lock()
		active = nil
		activeMu.Unlock()
		ready <- fmt.Errorf("%w: SetWindowsHookEx: %v", ErrPermissionDenied, err)
		return
	}
	w.mu.Lock()
	w.hook = hook
	w.threadID = windows.GetCurrentThreadId()
	w.mu.Unlock()
	ready <- nil

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
	}

	procUnhookWindowsHookEx.Call(hook)
	activeMu.Lock()
	active = nil
	activeMu.Unlock()
}

func lowLevelKeyboardProc(nCode uintptr, wParam uintptr, lParam uintptr) uintptr {
	if int32(nCode) < 0 {
		r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return r
	}

	activeMu.RLock()
	w := active
	activeMu.RUnlock()

	if w != nil {
		info := (*kbdllhookstruct)(unsafe.Pointer(lParam))
		t := Down
		if wParam == wmKeyUp || wParam == wmSysKeyUp {
			t = Up
		}
		e := KeyEvent{
			Key:        Key(info.VkCode),
			Transition: t,
			Modifiers:  w.mods.update(Key(info.VkCode), t),
			Injected:   info.Flags&llkhfInjected != 0 || info.DwExtraInfo == injectionTag,
			Time:       time.Now(),
		}
		if h := w.handler; h != nil && h(e) == Suppress {
			return 1
		}
	}

	r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}

// capsLockOn reads the toggle bit once at start-up.
func capsLockOn() bool {
	r, _, _ := procGetKeyState.Call(uintptr(KeyCapsLock))
	return r&1 != 0
}

func (w *windowsBackend) Synthesize(strokes []Stroke) error {
	if len(strokes) == 0 {
		return nil
	}
	inputs := make([]input, len(strokes))
	for i, s := range strokes {
		inputs[i] = input{Type: inputKeyboard, Ki: keybdInput{Vk: uint16(s.Key), ExtraInfo: injectionTag}}
		if s.Transition == Up {
			inputs[i].Ki.Flags = keyeventfKeyUp
		}
	}
	n, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(n) != len(inputs) {
		return fmt.Errorf("keyboard: SendInput sent %d of %d: %v", n, len(inputs), err)
	}
	return nil
}

func (w *windowsBackend) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	tid := w.threadID
	done := w.done
	w.mu.Unlock()

	procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
	<-done
	return nil
}
