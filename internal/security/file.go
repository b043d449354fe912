// Package security holds the file-handling rules for data that may contain
// snippet text or key material: owner-only permissions, atomic replacement
// and a lock that keeps a second daemon from capturing the keyboard.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// PermPrivateFile is owner read/write only.
	PermPrivateFile os.FileMode = 0600
	// PermPrivateDir is owner only.
	PermPrivateDir os.FileMode = 0700
)

var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrAtomicWriteFailed   = errors.New("security: atomic write failed")
	ErrLocked              = errors.New("security: already locked by another process")
)

// AtomicWriter writes to a temporary file next to path and renames it into
// place on Commit, so readers never see a partial file.
type AtomicWriter struct {
	path     string
	tempFile *os.File
	tempPath string
}

// NewAtomicWriter creates the temporary file with perm, creating the parent
// directory owner-only if needed.
func NewAtomicWriter(path string, perm os.FileMode) (*AtomicWriter, error) {
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), PermPrivateDir); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	tempPath := clean + ".tmp." + randomSuffix()
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, fmt.Errorf("security: create temp file: %w", err)
	}
	return &AtomicWriter{path: clean, tempFile: f, tempPath: tempPath}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	return w.tempFile.Write(p)
}

// Commit syncs and renames the temporary file over the target.
func (w *AtomicWriter) Commit() error {
	if err := w.tempFile.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.tempFile.Close(); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(w.tempPath, w.path); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	return nil
}

// Abort discards the temporary file.
func (w *AtomicWriter) Abort() {
	w.tempFile.Close()
	os.Remove(w.tempPath)
}

func randomSuffix() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// WritePrivateFile atomically replaces path with data, readable by the
// owner only.
func WritePrivateFile(path string, data []byte) error {
	w, err := NewAtomicWriter(path, PermPrivateFile)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}

// EnsurePrivateDir creates path owner-only, or tightens an existing
// directory that is group or world accessible.
func EnsurePrivateDir(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, PermPrivateDir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("security: %s is not a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(path, PermPrivateDir); err != nil {
			return fmt.Errorf("fix directory permissions: %w", err)
		}
	}
	return nil
}

// CheckPrivate reports files that other users can read. Windows has no
// Unix permissions and always passes.
func CheckPrivate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrInsecurePermissions, path, mode)
	}
	return nil
}

// Wipe zeroes key material.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}
