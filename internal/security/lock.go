package security

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// InstanceLock is an exclusive advisory lock on a file holding the owner's
// PID.
type InstanceLock struct {
	f *os.File
}

// AcquireInstanceLock takes the lock at path without waiting. ErrLocked
// means another live process holds it.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, PermPrivateFile)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		if pid := readPID(path); pid > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		}
		return nil, ErrLocked
	}
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &InstanceLock{f: f}, nil
}

// Release unlocks and removes the lock file.
func (l *InstanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	path := l.f.Name()
	l.f.Truncate(0)
	err := unlock(l.f)
	l.f.Close()
	l.f = nil
	os.Remove(path)
	return err
}

func readPID(path string) int {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(b)))
	return pid
}
