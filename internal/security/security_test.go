package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePrivateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "export.json")
	require.NoError(t, WritePrivateFile(path, []byte("first")))
	require.NoError(t, WritePrivateFile(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.NoError(t, CheckPrivate(path))

	leftovers, _ := filepath.Glob(path + ".tmp.*")
	assert.Empty(t, leftovers)
}

func TestAtomicWriterAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("old"), PermPrivateFile))

	w, err := NewAtomicWriter(path, PermPrivateFile)
	require.NoError(t, err)
	_, err = w.Write([]byte("half"))
	require.NoError(t, err)
	w.Abort()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestEnsurePrivateDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no unix permissions")
	}
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, EnsurePrivateDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, PermPrivateDir, info.Mode().Perm())

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.Error(t, EnsurePrivateDir(file))
	assert.ErrorIs(t, CheckPrivate(file), ErrInsecurePermissions)
}

func TestInstanceLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expandd.lock")
	first, err := AcquireInstanceLock(path)
	require.NoError(t, err)

	_, err = AcquireInstanceLock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Release())
	second, err := AcquireInstanceLock(path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
	require.NoError(t, (*InstanceLock)(nil).Release())
}

func TestWipe(t *testing.T) {
	key := []byte{1, 2, 3}
	Wipe(key)
	assert.Equal(t, []byte{0, 0, 0}, key)
}
