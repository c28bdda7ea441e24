package runlock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagepromote.lock")

	lock, err := TryAcquire(path)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, path, lock.Path())

	second, err := TryAcquire(path)
	require.NoError(t, err)
	assert.Nil(t, second, "lock was acquired twice")

	require.NoError(t, lock.Release())

	third, err := TryAcquire(path)
	require.NoError(t, err)
	require.NotNil(t, third)
	require.NoError(t, third.Release())
}

func TestTryAcquireInNonExistingDir(t *testing.T) {
	_, err := TryAcquire(filepath.Join(t.TempDir(), "missing", "stagepromote.lock"))
	assert.Error(t, err)
}
