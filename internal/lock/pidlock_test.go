package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := PathFor(filepath.Join(t.TempDir(), "leasehook.db"))
	l, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	pid, ok := Holder(lockPath)
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
	assert.Equal(t, lockPath, l.Path())
}

func TestAcquirePIDLockIsExclusive(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "nested", "leasehook.lock")
	first, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)

	_, err = AcquirePIDLock(lockPath)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestHolderMissingFile(t *testing.T) {
	_, ok := Holder(filepath.Join(t.TempDir(), "absent"))
	assert.False(t, ok)
}
